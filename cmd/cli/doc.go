package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/icon-project/goagree/common/errors"
)

func NewGenerateMarkdownCommand(parentCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc [FILE]",
		Short: "Generate markdown for the command line interface",
		Args:  ArgsWithDefaultErrorFunc(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			filePath := root.Name() + ".md"
			if len(args) > 0 {
				filePath = args[0]
			}
			f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return errors.Errorf("fail to open file=%s err=%+v", filePath, err)
			}
			defer f.Close()
			if err := GenerateMarkdown(root, f); err != nil {
				return err
			}
			cmd.Println("Generated markdown", filePath)
			return nil
		},
	}
	if parentCmd != nil {
		parentCmd.AddCommand(cmd)
	}
	return cmd
}

func isIgnoreCommand(cmd *cobra.Command) bool {
	return cmd.Name() == "help" || cmd.Hidden
}

// GenerateMarkdown writes a section for cmd and each of its descendants.
func GenerateMarkdown(cmd *cobra.Command, w io.Writer) error {
	if isIgnoreCommand(cmd) {
		return nil
	}
	sb := new(strings.Builder)
	if !cmd.HasParent() {
		name := cmd.Name()
		fmt.Fprintf(sb, "# %s\n\n", strings.ToUpper(name[:1])+name[1:])
	}
	fmt.Fprintf(sb, "## %s\n\n", cmd.CommandPath())

	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	fmt.Fprintf(sb, "### Description\n%s\n\n", desc)
	fmt.Fprintf(sb, "### Usage\n` %s `\n\n", cmd.UseLine())

	if cmd.HasLocalFlags() || cmd.HasPersistentFlags() {
		writeFlagTable(sb, "Options", cmd.NonInheritedFlags())
	}
	if cmd.HasInheritedFlags() {
		writeFlagTable(sb, "Inherited Options", cmd.InheritedFlags())
	}
	if cmd.HasAvailableSubCommands() {
		writeCommandTable(sb, "Child commands", cmd.Commands()...)
	}
	if cmd.HasParent() {
		writeCommandTable(sb, "Parent command", cmd.Parent())
		writeCommandTable(sb, "Related commands", cmd.Parent().Commands()...)
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	for _, child := range cmd.Commands() {
		if err := GenerateMarkdown(child, w); err != nil {
			return err
		}
	}
	return nil
}

func writeCommandTable(sb *strings.Builder, title string, cmds ...*cobra.Command) {
	fmt.Fprintf(sb, "### %s\n|Command | Description|\n|---|---|\n", title)
	for _, c := range cmds {
		if isIgnoreCommand(c) {
			continue
		}
		p := c.CommandPath()
		fmt.Fprintf(sb, "| [%s](#%s) | %s |\n", p, strings.ReplaceAll(p, " ", "-"), c.Short)
	}
	sb.WriteString("\n")
}

func writeFlagTable(sb *strings.Builder, title string, fs *pflag.FlagSet) {
	fmt.Fprintf(sb, "### %s\n|Name,shorthand | Default | Description|\n|---|---|---|\n", title)
	fs.VisitAll(func(f *pflag.Flag) {
		name := "--" + f.Name
		if f.Shorthand != "" && f.ShorthandDeprecated == "" {
			name += ", -" + f.Shorthand
		}
		fmt.Fprintf(sb, "| %s | %s | %s |\n", name, f.DefValue, f.Usage)
	})
	sb.WriteString("\n")
}
