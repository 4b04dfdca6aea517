package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felo/emldecode/internal/eml"
	"github.com/felo/emldecode/internal/indexer"
)

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print headers, part tree and decoded text of a message",
	Long: "Print headers, part tree and decoded text of a message.\n" +
		"FILE is a .eml file or an mbox entry written as archive.mbox#N.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadMessage(cmd, args[0])
		if err != nil {
			return err
		}
		defer m.Close()

		_, err = io.WriteString(cmd.OutOrStdout(), m.DebugString())
		return err
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree FILE",
	Short: "Print the part tree with kinds and sizes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadMessage(cmd, args[0])
		if err != nil {
			return err
		}
		defer m.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s, %d parts)\n", args[0], humanize.Bytes(uint64(m.Filesize())), m.PartCount())
		m.Walk(func(p *eml.Part) bool {
			fmt.Fprintln(out, treeLine(p))
			return true
		})
		return nil
	},
}

// treeLine renders one part, indented by its depth
func treeLine(p *eml.Part) string {
	depth := strings.Count(p.Path(), ".")
	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", depth+1))
	sb.WriteString(p.Path())

	kind := string(p.Kind())
	if kind == "" {
		kind = "-"
	}
	ct := p.ContentType()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	fmt.Fprintf(&sb, " [%s] %s", kind, strings.TrimSpace(ct))

	if name := p.ContentName(); name != "" {
		fmt.Fprintf(&sb, " %q", name)
	}
	if !p.IsContainer() {
		rec := indexer.PartRecord(p)
		sb.WriteString(" " + humanize.Bytes(uint64(rec.Size)))
		if rec.IsAttachment {
			sb.WriteString(" attachment")
		}
	}
	return sb.String()
}

var headersCmd = &cobra.Command{
	Use:   "headers FILE",
	Short: "Print the headers of a message or of one part",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadMessage(cmd, args[0])
		if err != nil {
			return err
		}
		defer m.Close()

		header := m.Header()
		if path, _ := cmd.Flags().GetString("part"); path != "" {
			p, err := m.PartAt(path)
			if err != nil {
				return err
			}
			header = p.Header()
		}

		out := cmd.OutOrStdout()
		for _, k := range header.Keys() {
			for _, v := range header.Values(k) {
				fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Write the decoded body of one part to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("part")
		output, _ := cmd.Flags().GetString("output")

		m, err := loadMessage(cmd, args[0])
		if err != nil {
			return err
		}
		defer m.Close()

		p, err := m.PartAt(path)
		if err != nil {
			return err
		}
		if p.IsContainer() {
			return fmt.Errorf("part %s is a container", path)
		}

		data, err := p.Bytes()
		if err != nil {
			return fmt.Errorf("failed to decode part %s: %w", path, err)
		}

		if output == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if output == "" {
			output = extractName(p)
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}

		logger.Info("Extracted part", "part", path, "file", output, "size", humanize.Bytes(uint64(len(data))))
		return nil
	},
}

// extractName picks a local file name for a part: its content name without
// any directories, or part-PATH.bin
func extractName(p *eml.Part) string {
	name := filepath.Base(strings.ReplaceAll(p.ContentName(), `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	if name == "" {
		name = "part-" + p.Path() + ".bin"
	}
	return name
}

func init() {
	headersCmd.Flags().String("part", "", "Dotted part path, e.g. 0.1")
	extractCmd.Flags().String("part", "", "Dotted part path, e.g. 0.1")
	extractCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default: the part's name)")
	_ = extractCmd.MarkFlagRequired("part")
}

// loadMessage decodes FILE, which is a plain path or archive.mbox#N. A
// partial decode is reported but still returned.
func loadMessage(cmd *cobra.Command, arg string) (*eml.Message, error) {
	entry := indexer.ParseEntryKey(arg)

	m, err := indexer.Load(cmd.Context(), entry.Source, entry.MboxIndex, logger)
	if err != nil {
		return nil, err
	}
	if !m.OK() {
		logger.Warn("Message decoded with errors", "file", arg, "error", m.Err())
	}
	return m, nil
}
