package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-tutor/pkg/graph"
	"github.com/vango-go/vai-tutor/pkg/store/storeclient"
)

const defaultServer = "http://localhost:8080"

func newRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:   "tutorctl",
		Short: "Inspect conversations stored by a vai-tutor server",
		Long: `tutorctl reads and writes the turn store of a running vai-tutor server.

Examples:
  tutorctl conversations list
  tutorctl conversations create --persona dora --title "Rainbows"
  tutorctl turns list conv_01J...
  tutorctl graph conv_01J... --format mermaid
  tutorctl audio get aud_01J... -o answer.mp3`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("TUTOR_SERVER")
	if defaultURL == "" {
		defaultURL = defaultServer
	}
	root.PersistentFlags().StringVar(&server, "server", defaultURL, "tutor server base URL (env TUTOR_SERVER)")

	client := func() *storeclient.Client { return storeclient.New(server) }
	root.AddCommand(
		newConversationsCmd(client),
		newTurnsCmd(client),
		newGraphCmd(client),
		newAudioCmd(client),
	)
	return root
}

func newConversationsCmd(client func() *storeclient.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List or create conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			convs, err := client().ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPERSONA\tCREATED\tTITLE")
			for _, c := range convs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Persona, c.CreatedAt.Format(time.RFC3339), c.Title)
			}
			return tw.Flush()
		},
	})

	var persona, title string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a conversation and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv, err := client().CreateConversation(cmd.Context(), persona, title)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
			return nil
		},
	}
	create.Flags().StringVar(&persona, "persona", "", "persona id (required)")
	create.Flags().StringVar(&title, "title", "", "optional title")
	_ = create.MarkFlagRequired("persona")
	cmd.AddCommand(create)
	return cmd
}

func newTurnsCmd(client func() *storeclient.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "Inspect the turns of a conversation",
	}
	var asJSON bool
	list := &cobra.Command{
		Use:   "list <conversation-id>",
		Short: "List turns in chronological order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			turns, err := client().ListTurns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), turns)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tCONCEPT\tAUDIO\tQUESTION")
			for i, t := range turns {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", graph.NodeID(i), t.Concept, t.AudioID, oneLine(t.Question))
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print the turns as JSON")
	cmd.AddCommand(list)
	return cmd
}

func newGraphCmd(client func() *storeclient.Client) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph <conversation-id>",
		Short: "Print the concept map of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "mermaid" && format != "json" {
				return fmt.Errorf("--format must be mermaid or json, got %q", format)
			}
			turns, err := client().ListTurns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			g := graph.Build(turns)
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), g)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), g.Mermaid())
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "output format: mermaid or json")
	return cmd
}

func newAudioCmd(client func() *storeclient.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Fetch stored answer audio",
	}
	var out string
	get := &cobra.Command{
		Use:   "get <audio-id>",
		Short: "Download an audio clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clip, err := client().GetAudio(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(clip.Data)
				return err
			}
			if err := os.WriteFile(out, clip.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes (%s) to %s\n", len(clip.Data), clip.MimeType, out)
			return nil
		},
	}
	get.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.AddCommand(get)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.New("encode output: " + err.Error())
	}
	return nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
