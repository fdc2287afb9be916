package consensus

import (
	"fmt"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/module"
)

const (
	ProtoProposal    module.ProtocolInfo = 0x0100
	ProtoVote        module.ProtocolInfo = 0x0200
	ProtoCertificate module.ProtocolInfo = 0x0300
)

var csProtocols = []module.ProtocolInfo{ProtoProposal, ProtoVote, ProtoCertificate}

// Message is the closed set of inputs a driver accepts from the network.
// Only this package can add members.
type Message interface {
	Verify() error
	String() string
	height() int64
	round() int32
	subprotocol() module.ProtocolInfo
}

type protocolConstructor struct {
	proto       module.ProtocolInfo
	constructor func() Message
}

var protocolConstructors = [...]protocolConstructor{
	{ProtoProposal, func() Message { return new(ProposalMessage) }},
	{ProtoVote, func() Message { return new(VoteMessage) }},
	{ProtoCertificate, func() Message { return new(CertificateMessage) }},
}

// UnmarshalMessage decodes a framed payload received on the sub-protocol.
func UnmarshalMessage(pi module.ProtocolInfo, bs []byte) (Message, error) {
	for _, pc := range protocolConstructors {
		if pi == pc.proto {
			msg := pc.constructor()
			if err := codec.DecodeFrame(bs, msg); err != nil {
				return nil, errors.InvalidMessageError.Wrap(err, "decode")
			}
			return msg, nil
		}
	}
	return nil, errors.InvalidMessageError.Errorf("unknown protocol %s", pi)
}

func MarshalMessage(msg Message) ([]byte, error) {
	return codec.EncodeFrame(msg)
}

func verifyHR(height int64, round int32) error {
	if height <= 0 {
		return errors.InvalidMessageError.Errorf("bad height %d", height)
	}
	if round < 0 {
		return errors.InvalidMessageError.Errorf("bad round %d", round)
	}
	return nil
}

type voteContent struct {
	Height    int64
	Round     int32
	Type      VoteType
	Target    block.Ref
	Authority common.Address
}

type VoteMessage struct {
	Height    int64
	Round     int32
	Type      VoteType
	Target    block.Ref
	Authority common.Address
	Signature common.HexBytes

	sb signedBase
}

func NewVoteMessage(w module.Wallet, vt VoteType, height int64, round int32, target block.Ref) (*VoteMessage, error) {
	msg := &VoteMessage{
		Height:    height,
		Round:     round,
		Type:      vt,
		Target:    target,
		Authority: w.Address(),
	}
	sig, err := msg.sb.sign(w, msg.content())
	if err != nil {
		return nil, err
	}
	msg.Signature = sig
	return msg, nil
}

func (msg *VoteMessage) content() *voteContent {
	return &voteContent{
		Height:    msg.Height,
		Round:     msg.Round,
		Type:      msg.Type,
		Target:    msg.Target,
		Authority: msg.Authority,
	}
}

// Hash is the digest the signature covers. Two votes with the same hash
// are the same vote.
func (msg *VoteMessage) Hash() []byte {
	return msg.sb.hash(msg.content())
}

func (msg *VoteMessage) Signer() (common.Address, error) {
	return msg.sb.signer(msg.content(), msg.Signature)
}

func (msg *VoteMessage) Verify() error {
	if err := verifyHR(msg.Height, msg.Round); err != nil {
		return err
	}
	if !msg.Type.IsValid() {
		return errors.InvalidMessageError.Errorf("bad vote type %d", msg.Type)
	}
	if err := msg.Target.Verify(); err != nil {
		return errors.InvalidMessageError.Wrap(err, "bad target")
	}
	signer, err := msg.Signer()
	if err != nil {
		return err
	}
	if signer != msg.Authority {
		return errors.InvalidSignatureError.Errorf("signer=%s authority=%s", signer, msg.Authority)
	}
	return nil
}

func (msg *VoteMessage) height() int64 {
	return msg.Height
}

func (msg *VoteMessage) round() int32 {
	return msg.Round
}

func (msg *VoteMessage) subprotocol() module.ProtocolInfo {
	return ProtoVote
}

func (msg *VoteMessage) String() string {
	return fmt.Sprintf("VoteMessage{%s H:%d R:%d Target:%s Addr:%s}",
		msg.Type, msg.Height, msg.Round, msg.Target, common.HexPre(msg.Authority[:]))
}

type proposalContent struct {
	Height   int64
	Round    int32
	POLRound int32
	Target   block.Ref
	Proposer common.Address
}

// ProposalMessage names the candidate block of a round. The block itself
// travels with the message but only its Ref is signed.
type ProposalMessage struct {
	Height    int64
	Round     int32
	POLRound  int32
	Target    block.Ref
	Proposer  common.Address
	Signature common.HexBytes
	Block     *block.Block

	sb signedBase
}

func NewProposalMessage(w module.Wallet, height int64, round int32, polRound int32, blk *block.Block) (*ProposalMessage, error) {
	msg := &ProposalMessage{
		Height:   height,
		Round:    round,
		POLRound: polRound,
		Target:   blk.Ref(),
		Proposer: w.Address(),
		Block:    blk,
	}
	sig, err := msg.sb.sign(w, msg.content())
	if err != nil {
		return nil, err
	}
	msg.Signature = sig
	return msg, nil
}

func (msg *ProposalMessage) content() *proposalContent {
	return &proposalContent{
		Height:   msg.Height,
		Round:    msg.Round,
		POLRound: msg.POLRound,
		Target:   msg.Target,
		Proposer: msg.Proposer,
	}
}

func (msg *ProposalMessage) Hash() []byte {
	return msg.sb.hash(msg.content())
}

func (msg *ProposalMessage) Signer() (common.Address, error) {
	return msg.sb.signer(msg.content(), msg.Signature)
}

// verifySigned checks the signed part only; evidence keeps proposals
// without their blocks.
func (msg *ProposalMessage) verifySigned() error {
	if err := verifyHR(msg.Height, msg.Round); err != nil {
		return err
	}
	if msg.POLRound < -1 || msg.POLRound >= msg.Round {
		return errors.InvalidMessageError.Errorf("bad pol round %d for round %d", msg.POLRound, msg.Round)
	}
	if msg.Target.IsNil() {
		return errors.InvalidMessageError.New("nil proposal target")
	}
	if err := msg.Target.Verify(); err != nil {
		return errors.InvalidMessageError.Wrap(err, "bad target")
	}
	signer, err := msg.Signer()
	if err != nil {
		return err
	}
	if signer != msg.Proposer {
		return errors.InvalidSignatureError.Errorf("signer=%s proposer=%s", signer, msg.Proposer)
	}
	return nil
}

func (msg *ProposalMessage) Verify() error {
	if err := msg.verifySigned(); err != nil {
		return err
	}
	if msg.Block == nil {
		return errors.InvalidMessageError.New("proposal without block")
	}
	if err := msg.Block.Verify(); err != nil {
		return errors.InvalidMessageError.Wrap(err, "bad block")
	}
	if msg.Block.Height() != msg.Height {
		return errors.InvalidMessageError.Errorf("block height=%d proposal height=%d",
			msg.Block.Height(), msg.Height)
	}
	if !msg.Block.Ref().Equal(msg.Target) {
		return errors.InvalidMessageError.Errorf("block %s does not match target %s",
			msg.Block.Ref(), msg.Target)
	}
	return nil
}

// withoutBlock returns a copy sharing the signed fields.
func (msg *ProposalMessage) withoutBlock() *ProposalMessage {
	return &ProposalMessage{
		Height:    msg.Height,
		Round:     msg.Round,
		POLRound:  msg.POLRound,
		Target:    msg.Target,
		Proposer:  msg.Proposer,
		Signature: msg.Signature,
	}
}

func (msg *ProposalMessage) height() int64 {
	return msg.Height
}

func (msg *ProposalMessage) round() int32 {
	return msg.Round
}

func (msg *ProposalMessage) subprotocol() module.ProtocolInfo {
	return ProtoProposal
}

func (msg *ProposalMessage) String() string {
	return fmt.Sprintf("ProposalMessage{H:%d R:%d POLR:%d Target:%s Addr:%s}",
		msg.Height, msg.Round, msg.POLRound, msg.Target, common.HexPre(msg.Proposer[:]))
}

// CertificateMessage carries a precommit quorum certificate together with
// the block it finalizes, so that a lagging node can commit.
type CertificateMessage struct {
	Certificate *QuorumCertificate
	Block       *block.Block
}

func NewCertificateMessage(c *Commit) *CertificateMessage {
	return &CertificateMessage{
		Certificate: c.Certificate,
		Block:       c.Block,
	}
}

// Verify checks the shape of the message. Signatures and weights are
// checked against the roster of the height by the driver.
func (msg *CertificateMessage) Verify() error {
	if msg.Certificate == nil {
		return errors.InvalidMessageError.New("no certificate")
	}
	if err := msg.Certificate.verifyShape(); err != nil {
		return err
	}
	if msg.Certificate.Type != VoteTypePrecommit || msg.Certificate.Target.IsNil() {
		return errors.InvalidMessageError.New("certificate is not a block precommit")
	}
	if msg.Block == nil {
		return errors.InvalidMessageError.New("certificate without block")
	}
	if err := msg.Block.Verify(); err != nil {
		return errors.InvalidMessageError.Wrap(err, "bad block")
	}
	if !msg.Block.Ref().Equal(msg.Certificate.Target) || msg.Block.Height() != msg.Certificate.Height {
		return errors.InvalidMessageError.New("block does not match certificate")
	}
	return nil
}

func (msg *CertificateMessage) height() int64 {
	if msg.Certificate == nil {
		return 0
	}
	return msg.Certificate.Height
}

func (msg *CertificateMessage) round() int32 {
	if msg.Certificate == nil {
		return 0
	}
	return msg.Certificate.Round
}

func (msg *CertificateMessage) subprotocol() module.ProtocolInfo {
	return ProtoCertificate
}

func (msg *CertificateMessage) String() string {
	return fmt.Sprintf("CertificateMessage{%v}", msg.Certificate)
}
