package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nhle/mailjobs/internal/account"
	"github.com/nhle/mailjobs/internal/classification"
	"github.com/nhle/mailjobs/internal/credential"
	"github.com/nhle/mailjobs/internal/jobs"
	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
	"github.com/nhle/mailjobs/internal/transmission"
	"github.com/nhle/mailjobs/internal/transport"
)

// app wires the stores, services and jobs for one process.
type app struct {
	logger *slog.Logger

	store      *store.SQLiteStore
	directory  *account.Directory
	accounts   *account.Service
	settings   *classification.Settings
	dispatcher *jobs.Dispatcher
	pipeline   *transmission.Pipeline
	closed     bool
}

func newApp(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(dirOf(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	creds, err := credential.Open(cfg.Keyring)
	if err != nil {
		s.Close()
		return nil, err
	}

	sender, err := transport.NewSender(ctx, cfg.Outbound)
	if err != nil {
		s.Close()
		return nil, err
	}
	imap := transport.NewIMAPMailboxes(nil, logger)

	directory := account.NewDirectory(s, creds)
	settings := classification.NewSettings(s)

	dispatcher := jobs.NewDispatcher(s, cfg.Jobs, logger)
	dispatcher.Register(jobs.NewTrainImportanceClassifierJob(jobs.Deps{
		Accounts:   directory,
		Settings:   settings,
		Classifier: classification.NewImportanceClassifier(imap, s, cfg.Classifier),
		JobList:    s,
		Logger:     logger,
	}))

	return &app{
		logger:     logger,
		store:      s,
		directory:  directory,
		accounts:   account.NewService(s, creds, logger, jobs.KindTrainImportanceClassifier),
		settings:   settings,
		dispatcher: dispatcher,
		pipeline: transmission.New(transmission.Deps{
			Store:     s,
			Sender:    sender,
			Mailboxes: imap,
			Hostname:  cfg.Hostname,
			Logger:    logger,
		}),
	}, nil
}

// Close releases the database. It is safe to call more than once.
func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return a.runDispatcher(ctx)
	case "train":
		return a.train(ctx, rest)
	case "jobs":
		return a.listJobs(ctx)
	case "account":
		if len(rest) == 0 {
			return errors.New("account: expected add or remove")
		}
		switch rest[0] {
		case "add":
			return a.addAccount(ctx, rest[1:])
		case "remove":
			return a.removeAccount(ctx, rest[1:])
		}
		return fmt.Errorf("account: unknown subcommand %q", rest[0])
	case "classification":
		return a.setClassification(ctx, rest)
	case "send":
		return a.send(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) runDispatcher(ctx context.Context) error {
	a.logger.Info("starting job dispatcher")
	a.dispatcher.Start(ctx)
	<-ctx.Done()
	a.logger.Info("received signal, shutting down")
	a.dispatcher.Stop()
	return nil
}

func (a *app) train(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	accountID := fs.Int64("account", 0, "account ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == 0 {
		return errors.New("train: -account is required")
	}

	outcome, err := a.dispatcher.RunNow(ctx, jobs.KindTrainImportanceClassifier, model.JobArgument{AccountID: *accountID})
	if err != nil {
		return err
	}
	fmt.Println(outcome)
	return nil
}

func (a *app) listJobs(ctx context.Context) error {
	entries, err := a.store.ListJobs(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tACCOUNT\tLAST RUN")
	for _, e := range entries {
		lastRun := "never"
		if !e.LastRun.IsZero() {
			lastRun = e.LastRun.Local().Format(time.RFC3339)
		}
		account := strconv.FormatInt(e.Argument.AccountID, 10)
		if e.ArgumentErr != nil {
			account = "invalid"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Kind, account, lastRun)
	}
	return w.Flush()
}

func (a *app) addAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account add", flag.ContinueOnError)
	acc := &model.Account{}
	fs.StringVar(&acc.UserID, "user", "", "owning user ID")
	fs.StringVar(&acc.Email, "email", "", "email address")
	fs.StringVar(&acc.Name, "name", "", "display name")
	fs.StringVar(&acc.InboundHost, "imap-host", "", "IMAP host")
	fs.IntVar(&acc.InboundPort, "imap-port", 993, "IMAP port")
	fs.StringVar(&acc.InboundUser, "imap-user", "", "IMAP login (defaults to email)")
	fs.BoolVar(&acc.InboundTLS, "imap-tls", true, "use implicit TLS for IMAP")
	fs.StringVar(&acc.OutboundHost, "smtp-host", "", "SMTP host")
	fs.IntVar(&acc.OutboundPort, "smtp-port", 587, "SMTP port")
	fs.StringVar(&acc.OutboundUser, "smtp-user", "", "SMTP login (defaults to IMAP login)")
	fs.BoolVar(&acc.OutboundTLS, "smtp-tls", false, "use implicit TLS for SMTP")
	fs.StringVar(&acc.AuthMethod, "auth", model.AuthMethodPassword, "password or xoauth2")
	sentName := fs.String("sent", "Sent", "Sent mailbox name, empty to leave unset")
	draftsName := fs.String("drafts", "Drafts", "Drafts mailbox name, empty to leave unset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if acc.InboundUser == "" {
		acc.InboundUser = acc.Email
	}
	acc.InboundPassword = os.Getenv("MAILJOBS_IMAP_PASSWORD")
	acc.OutboundPassword = os.Getenv("MAILJOBS_SMTP_PASSWORD")
	acc.OAuthToken = os.Getenv("MAILJOBS_OAUTH_TOKEN")

	if err := a.accounts.Provision(ctx, acc); err != nil {
		return err
	}

	if *sentName != "" {
		mb := &model.Mailbox{AccountID: acc.ID, Name: *sentName, SpecialUse: model.SpecialUseSent}
		if err := a.store.UpsertMailbox(ctx, mb); err != nil {
			return err
		}
		acc.SentMailboxID = &mb.ID
	}
	if *draftsName != "" {
		mb := &model.Mailbox{AccountID: acc.ID, Name: *draftsName, SpecialUse: model.SpecialUseDrafts}
		if err := a.store.UpsertMailbox(ctx, mb); err != nil {
			return err
		}
		acc.DraftsMailboxID = &mb.ID
	}
	if err := a.store.UpdateAccount(ctx, acc); err != nil {
		return err
	}

	fmt.Println(acc.ID)
	return nil
}

func (a *app) removeAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account remove", flag.ContinueOnError)
	accountID := fs.Int64("account", 0, "account ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == 0 {
		return errors.New("account remove: -account is required")
	}
	return a.accounts.Delete(ctx, *accountID)
}

func (a *app) setClassification(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("classification", flag.ContinueOnError)
	userID := fs.String("user", "", "user ID")
	enabled := fs.Bool("enabled", true, "enable classifier training")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("classification: -user is required")
	}
	return a.settings.SetEnabled(ctx, *userID, *enabled)
}

func (a *app) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	accountID := fs.Int64("account", 0, "account ID")
	to := fs.String("to", "", "comma separated To addresses")
	cc := fs.String("cc", "", "comma separated Cc addresses")
	bcc := fs.String("bcc", "", "comma separated Bcc addresses")
	subject := fs.String("subject", "", "subject")
	body := fs.String("body", "", "plain text body")
	requestMDN := fs.Bool("mdn", false, "request a read receipt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == 0 {
		return errors.New("send: -account is required")
	}

	acc, err := a.directory.FindByID(ctx, *accountID)
	if err != nil {
		return err
	}

	msg := &model.LocalMessage{
		AccountID:  acc.ID,
		Type:       model.LocalMessageTypeOutgoing,
		Subject:    *subject,
		Body:       *body,
		RequestMDN: *requestMDN,
	}
	msg.Recipients = append(msg.Recipients, splitRecipients(model.RecipientTypeTo, *to)...)
	msg.Recipients = append(msg.Recipients, splitRecipients(model.RecipientTypeCc, *cc)...)
	msg.Recipients = append(msg.Recipients, splitRecipients(model.RecipientTypeBcc, *bcc)...)

	if err := a.store.SaveLocalMessage(ctx, msg); err != nil {
		return err
	}
	return a.pipeline.SendMessage(ctx, acc, msg)
}

func splitRecipients(kind, list string) []model.Recipient {
	var out []model.Recipient
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		out = append(out, model.Recipient{Type: kind, Email: addr})
	}
	return out
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}
