package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"jobform/internal/cache"
	"jobform/internal/client"
	"jobform/internal/draft"
	"jobform/internal/engine"
	"jobform/internal/form"
	"jobform/internal/livesync"
	"jobform/internal/model"
	"jobform/internal/photo"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type fillOptions struct {
	apiURL     string
	token      string
	templateID string
	tcJobCode  string
	live       bool
	redisAddr  string
	debug      bool
}

func fillCmd() *cobra.Command {
	var o fillOptions
	cmd := &cobra.Command{
		Use:   "fill <job-id>",
		Short: "Open the completion form of a job and fill it in group by group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if o.debug {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
			}
			defer logger.Sync()

			session, cleanup, err := newSession(args[0], o, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return newFiller(session, cmd.InOrStdin(), cmd.OutOrStdout()).run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&o.apiURL, "api", getEnv("JOBFORM_API_URL", "http://localhost:8080/v1"), "Backend base URL")
	cmd.Flags().StringVar(&o.token, "token", os.Getenv("JOBFORM_TOKEN"), "Bearer token")
	cmd.Flags().StringVar(&o.templateID, "template", "", "Template for a job that has no form yet")
	cmd.Flags().StringVar(&o.tcJobCode, "tc-code", "", "Treat the job as a TC job with this job code")
	cmd.Flags().BoolVar(&o.live, "live", false, "Sync answers live with the TC job instead of saving drafts")
	cmd.Flags().StringVar(&o.redisAddr, "redis", os.Getenv("JOBFORM_REDIS_ADDR"), "Redis address for session checkpoints")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Log to stderr")
	return cmd
}

func newSession(jobID string, o fillOptions, logger *zap.Logger) (*engine.Session, func(), error) {
	api := client.New(o.apiURL, logger, client.WithToken(o.token))
	cleanup := func() {}

	cfg := engine.Config{
		JobID:      jobID,
		TemplateID: o.templateID,
		Log:        logger,
	}
	var uploader photo.Uploader
	switch {
	case o.live:
		cfg.Live = livesync.NewAdapter(api, logger)
		uploader = photo.NewLiveUploader(api, jobID)
	case o.tcJobCode != "":
		cfg.Forms = draft.NewTCJobForms(api, o.tcJobCode)
		cfg.Templates = api
		uploader = photo.NewBackendUploader(api, model.JobKindTC, jobID)
	default:
		cfg.Forms = draft.NewJobForms(api)
		cfg.Templates = api
		uploader = photo.NewBackendUploader(api, model.JobKindInternal, jobID)
	}
	cfg.Photos = photo.NewPipeline(nil, photo.NewNormalizer(os.TempDir(), logger), uploader, logger)
	if o.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		cfg.Snapshots = cache.NewSnapshotStore(rdb, cache.DefaultTTL)
		cleanup = func() { rdb.Close() }
	}

	session, err := engine.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return session, cleanup, nil
}

// filler walks a session through its groups on a line-oriented terminal.
type filler struct {
	session *engine.Session
	in      *bufio.Scanner
	out     io.Writer
}

func newFiller(session *engine.Session, in io.Reader, out io.Writer) *filler {
	return &filler{session: session, in: bufio.NewScanner(in), out: out}
}

func (f *filler) readLine(prompt string) (string, bool) {
	fmt.Fprint(f.out, prompt)
	if !f.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(f.in.Text()), true
}

func (f *filler) run(ctx context.Context) error {
	if err := f.session.Start(ctx); err != nil {
		if errors.Is(err, engine.ErrNoTemplate) {
			return fmt.Errorf("%w: pass --template to start a new form", err)
		}
		return err
	}

	for {
		st, err := f.session.State()
		if err != nil {
			return err
		}
		if st.Submitted {
			fmt.Fprintln(f.out, "Form submitted.")
			return nil
		}
		if !f.editGroup(ctx, st) {
			return f.leave(ctx)
		}

		action, ok := f.readLine(f.actionPrompt(st))
		if !ok {
			return f.leave(ctx)
		}
		switch strings.ToLower(action) {
		case "", "n", "next", "submit":
			err = f.session.Advance(ctx)
		case "p", "prev", "previous":
			err = f.session.Previous()
		case "s", "save":
			err = f.session.SaveDraft(ctx)
			if err == nil {
				fmt.Fprintln(f.out, "Saved.")
			}
		case "q", "quit":
			return f.leave(ctx)
		default:
			fmt.Fprintf(f.out, "Unknown action %q\n", action)
			continue
		}

		var ve *engine.ValidationError
		switch {
		case errors.As(err, &ve):
			fmt.Fprintln(f.out, "Cannot submit yet:")
			printErrors(f.out, ve.Errors)
		case err != nil:
			fmt.Fprintf(f.out, "Error: %v\n", err)
		}
		if err := f.session.Checkpoint(ctx); err != nil {
			fmt.Fprintf(f.out, "Checkpoint failed: %v\n", err)
		}
	}
}

// editGroup prompts for every question of the current group. It returns
// false when input ends.
func (f *filler) editGroup(ctx context.Context, st engine.State) bool {
	schema := f.session.Schema()
	group := schema.Group(st.GroupIndex)
	fmt.Fprintf(f.out, "\n[%d/%d] %s  (%.0f%% done)\n", st.GroupIndex+1, st.GroupCount, group.Name, st.Progress*100)

	for _, fld := range schema.GroupFields(st.GroupIndex) {
		q := fld.Question()
		label := q.QuestionText
		if q.IsRequired {
			label += " *"
		}
		if reason, ok := st.Errors[q.ID]; ok {
			label += fmt.Sprintf(" (%s)", reason)
		}
		if len(q.AnswerOptions) > 0 {
			label += " " + optionList(q.AnswerOptions)
		}
		current, _ := f.session.Value(q.ID)
		line, ok := f.readLine(fmt.Sprintf("%s [%s]: ", label, formatValue(current)))
		if !ok {
			return false
		}
		if line == "" {
			continue
		}

		if isPhoto, _ := schema.IsPhoto(q.ID); isPhoto {
			url, err := f.session.UploadPhotoFile(ctx, q.ID, line)
			if err != nil {
				fmt.Fprintf(f.out, "  upload failed: %v\n", err)
				continue
			}
			fmt.Fprintf(f.out, "  uploaded %s\n", url)
			continue
		}
		if line == "-" {
			line = ""
		}
		v, ok := fld.Normalize(line)
		if !ok {
			fmt.Fprintf(f.out, "  %q is not a valid answer\n", line)
			continue
		}
		if err := f.session.UpdateField(q.ID, v); err != nil {
			fmt.Fprintf(f.out, "  %v\n", err)
		}
	}
	return true
}

func (f *filler) actionPrompt(st engine.State) string {
	next := "[n]ext"
	if st.IsLastGroup {
		next = "[n] submit"
	}
	return next + ", [p]revious, [s]ave, [q]uit: "
}

// leave waits for background saves, saves what is left and checkpoints the
// session so it can resume later.
func (f *filler) leave(ctx context.Context) error {
	if err := f.session.Wait(); err != nil {
		fmt.Fprintf(f.out, "Last background save failed: %v\n", err)
	}
	st, err := f.session.State()
	if err != nil || st.Submitted {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if st.Dirty {
		if err := f.session.SaveDraft(ctx); err != nil {
			fmt.Fprintf(f.out, "Save failed: %v\n", err)
		}
	}
	if err := f.session.Checkpoint(ctx); err != nil {
		return err
	}
	fmt.Fprintln(f.out, "Progress kept; run fill again to continue.")
	return nil
}

func optionList(opts []model.AnswerOption) string {
	texts := make([]string, len(opts))
	for i, o := range opts {
		texts[i] = o.Text
	}
	return "{" + strings.Join(texts, " | ") + "}"
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(t, ", ")
	case []interface{}:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

func printErrors(w io.Writer, errs form.Errors) {
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %s\n", id, errs[id])
	}
}
