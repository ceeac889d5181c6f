package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mirzahilmi/sealedreport/internal/common/config"
	"github.com/mirzahilmi/sealedreport/internal/common/constant"
	"github.com/mirzahilmi/sealedreport/internal/keydirectory"
	"github.com/mirzahilmi/sealedreport/internal/submission"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type options struct {
	server        string
	message       string
	attach        string
	replyEmail    string
	hospitalTrust string
	stripMetadata bool
	timeout       time.Duration
	verbose       bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "submit",
		Short:        "Seal a confidential report on this device and send it",
		Long:         "The message is read from --message, or from stdin when the flag is omitted.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", config.EnvString("SEALEDREPORT_SERVER", "http://127.0.0.1:8080"), "report server base URL")
	flags.StringVarP(&opts.message, "message", "m", "", "report text")
	flags.StringVarP(&opts.attach, "attach", "a", "", "file to attach")
	flags.StringVar(&opts.replyEmail, "reply-email", "", "optional address for a reply, sent unencrypted")
	flags.StringVar(&opts.hospitalTrust, "hospital-trust", "", "optional hospital trust, sent unencrypted")
	flags.BoolVar(&opts.stripMetadata, "strip-metadata", true, "remove EXIF and similar metadata from the attachment with exiftool")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if opts.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	report := submission.Report{
		Message:       opts.message,
		ReplyEmail:    opts.replyEmail,
		HospitalTrust: opts.hospitalTrust,
	}
	if report.Message == "" {
		raw, err := io.ReadAll(io.LimitReader(stdin, constant.MAX_MESSAGE_BYTES+1))
		if err != nil {
			return fmt.Errorf("could not read message: %w", err)
		}
		report.Message = strings.TrimRight(string(raw), "\n")
	}
	if strings.TrimSpace(report.Message) == "" {
		return errors.New("message is empty")
	}
	if len(report.Message) > constant.MAX_MESSAGE_BYTES {
		return fmt.Errorf("message exceeds %d bytes", constant.MAX_MESSAGE_BYTES)
	}

	if opts.attach != "" {
		attachment, err := submission.LoadAttachment(opts.attach)
		if err != nil {
			return err
		}
		if opts.stripMetadata && submission.Scrubbable(attachment.MimeType) {
			scrubber, err := submission.NewExifScrubber()
			if err != nil {
				return fmt.Errorf("exiftool unavailable, rerun with --strip-metadata=false to send the file as is: %w", err)
			}
			attachment, err = scrubber.Scrub(attachment)
			scrubber.Close()
			if err != nil {
				return err
			}
		}
		report.Attachment = &attachment
	}

	client := submission.NewClient(opts.server, nil)
	pipeline := submission.NewPipeline(keydirectory.New(client.PublicKeyURL()))

	request, err := pipeline.Prepare(ctx, report)
	if err != nil {
		// Only the safe message is shown; the cause goes to debug logs.
		log.Debug().Err(errors.Unwrap(err)).Msg("prepare failed")
		return err
	}

	receipt, err := client.Submit(ctx, request)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "report received: %s (%s)\n", receipt.ID, receipt.ReceivedAt.Format(time.RFC3339))
	return nil
}
