package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"solarcore/internal/application"
)

func NewSayCommand(opts *RootOptions) *cobra.Command {
	var speak bool

	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Run one text command through the assistant",
		Long:  "Interprets the text against the command catalog, applies it to the configured account's rooms and prints the reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Log, cmd.ErrOrStderr())

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.assistant.Handle(cmd.Context(), cfg.Account.ID, strings.Join(args, " "))
			if err != nil {
				logger.Warn("command failed", "error", err)
			}
			if speak {
				if serr := a.voice.Speak(cmd.Context(), reply.Response); serr != nil {
					logger.Warn("speaking reply", "error", serr)
				}
			}
			return printReply(cmd.OutOrStdout(), opts.Format, reply)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&speak, "speak", false, "also speak the reply")

	return cmd
}

func printReply(w io.Writer, format string, reply application.Reply) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	_, err := fmt.Fprintln(w, reply.Response)
	return err
}
