/*
 * Copyright 2023 ICON Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package consensus

import (
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/db"
	"github.com/icon-project/goagree/common/errors"
)

var evidenceCountKey = []byte("evidence.count")

type evidenceStore struct {
	bucket db.Bucket
	props  db.Bucket
	count  int64
}

// NewEvidenceStore keeps evidence in the EvidenceBySequence bucket with
// the number of entries under the chain properties.
func NewEvidenceStore(database db.Database) (EvidenceStore, error) {
	bk, err := database.GetBucket(db.EvidenceBySequence)
	if err != nil {
		return nil, err
	}
	props, err := database.GetBucket(db.ChainProperty)
	if err != nil {
		return nil, err
	}
	s := &evidenceStore{bucket: bk, props: props}
	bs, err := props.Get(evidenceCountKey)
	if err != nil {
		return nil, err
	}
	if bs != nil {
		if _, err := codec.UnmarshalFromBytes(bs, &s.count); err != nil {
			return nil, errors.Wrapc(err, errors.StorageFormatError, "evidence count")
		}
	}
	return s, nil
}

func (s *evidenceStore) Put(e *Evidence) error {
	bs, err := codec.EncodeFrame(e)
	if err != nil {
		return err
	}
	if err := s.bucket.Set(db.Int64Key(s.count), bs); err != nil {
		return err
	}
	if err := s.props.Set(evidenceCountKey, codec.MustMarshalToBytes(s.count+1)); err != nil {
		return err
	}
	s.count++
	return nil
}

func (s *evidenceStore) Load() ([]*Evidence, error) {
	list := make([]*Evidence, 0, s.count)
	for seq := int64(0); seq < s.count; seq++ {
		bs, err := db.DoGet(s.bucket, db.Int64Key(seq))
		if err != nil {
			return nil, err
		}
		e := new(Evidence)
		if err := codec.DecodeFrame(bs, e); err != nil {
			return nil, errors.Wrapcf(err, errors.StorageFormatError, "evidence seq=%d", seq)
		}
		list = append(list, e)
	}
	return list, nil
}
