// Command am is the operator- and agent-facing CLI surface (spec §6): every
// mutating subcommand drives the same internal/identity, internal/mail,
// internal/reservations packages the MCP tool handlers call, so the CLI and
// the MCP surface share one contract by construction rather than by
// re-implementation. Dispatch follows an os.Args[1] switch with a
// flag.NewFlagSet per subcommand and tabwriter for tabular listings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/audit"
	"github.com/dicklesworthstone/agentmail/internal/backup"
	"github.com/dicklesworthstone/agentmail/internal/clientconfig"
	"github.com/dicklesworthstone/agentmail/internal/config"
	"github.com/dicklesworthstone/agentmail/internal/content"
	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/mail"
	"github.com/dicklesworthstone/agentmail/internal/reservations"
	"github.com/dicklesworthstone/agentmail/internal/store"
	"github.com/dicklesworthstone/agentmail/internal/views"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "mail":
		err = runMail(os.Args[2:])
	case "file_reservations":
		err = runFileReservations(os.Args[2:])
	case "agents":
		err = runAgents(os.Args[2:])
	case "robot":
		err = runRobot(os.Args[2:])
	case "doctor":
		err = runDoctor(os.Args[2:])
	case "setup":
		err = runSetup(os.Args[2:])
	case "list-projects":
		err = runListProjects(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if isUsageErr(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`am - mcp-agent-mail operator CLI

Usage:
  am mail send --project K --from NAME --to NAME[,NAME...] [--cc NAME,...] --subject S --body B [--thread T] [--importance low|normal|high|urgent] [--ack-required] [--attach SHA,...]
  am mail inbox --project K --agent NAME [--limit N] [--json]
  am mail reply --project K --from NAME --in-reply-to ID --to NAME,... [--cc NAME,...] --subject S --body B [--importance I] [--ack-required]
  am mail ack --project K --message ID --agent NAME
  am mail search --project K --query Q [--limit N] [--json]
  am mail summarize --project K --thread T [--json]

  am file_reservations reserve --project K --agent NAME --paths PAT[,PAT...] [--exclusive] [--reason R] [--ttl-seconds N]
  am file_reservations release --project K --agent NAME [--id ID]
  am file_reservations list --project K [--json]

  am agents list --project K [--json]
  am agents register --project K --name NAME --program P --model M [--task T]

  am robot create --project K --program P --model M [--task T]
  am robot set-policy --project K --agent NAME --policy open|contacts_only|block_all
  am robot request-contact --project K --from NAME --to NAME [--reason R] [--ttl-seconds N]
  am robot respond-contact --project K --from NAME --to NAME --approve|--deny
  am robot list-contacts --project K --agent NAME [--json]
  am robot acquire-build-slot --project K --agent NAME --slot S [--exclusive] [--ttl-seconds N]
  am robot renew-build-slot --project K --slot S --agent NAME [--ttl-seconds N]
  am robot release-build-slot --project K --slot S --agent NAME

  am doctor check [--audit] [--json]
  am setup run [--config PATH] [--transport stdio|http] [--bin PATH]
  am setup status [--config PATH] [--transport stdio|http]
  am list-projects [--json]
  am migrate [--backup-dir DIR]

Environment: DATABASE_URL, STORAGE_ROOT (see 'server --help').`)
}

// usageErr marks a command-line/argument problem as exit code 2 (spec §6)
// rather than the generic fatal exit code 1.
type usageErr struct{ msg string }

func (e *usageErr) Error() string { return e.msg }

func isUsageErr(err error) bool {
	_, ok := err.(*usageErr)
	return ok
}

func usagef(format string, args ...any) error {
	return &usageErr{msg: fmt.Sprintf(format, args...)}
}

// engine bundles the open handles every subcommand needs. Opening it
// re-runs the same migration-on-open path store.Open always takes, so
// every subcommand sees an up-to-date schema without a separate step.
type engine struct {
	cfg   *config.Config
	db    *store.DB
	blobs *content.Store
}

func openEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, usagef("config: %v", err)
	}
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	blobs, err := content.New(db, cfg.StorageRoot)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening content store: %w", err)
	}
	return &engine{cfg: cfg, db: db, blobs: blobs}, nil
}

func (e *engine) Close() { _ = e.db.Close() }

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveProject(ctx context.Context, db *store.DB, key string) (*identity.Project, error) {
	if key == "" {
		return nil, usagef("--project is required")
	}
	return identity.EnsureProject(ctx, db, key)
}

func resolveAgent(ctx context.Context, db *store.DB, projectID int64, name string) (*identity.Agent, error) {
	if name == "" {
		return nil, usagef("--agent/--from/--to is required")
	}
	return identity.GetAgentByName(ctx, db, projectID, name)
}

// ---- mail ----

func runMail(args []string) error {
	if len(args) == 0 {
		return usagef("mail requires a subcommand: send, inbox, reply, ack, search, summarize")
	}
	switch args[0] {
	case "send":
		return mailSend(args[1:])
	case "inbox":
		return mailInbox(args[1:])
	case "reply":
		return mailReply(args[1:])
	case "ack":
		return mailAck(args[1:])
	case "search":
		return mailSearch(args[1:])
	case "summarize":
		return mailSummarize(args[1:])
	default:
		return usagef("unknown mail subcommand: %s", args[0])
	}
}

func recipientSpecs(ctx context.Context, db *store.DB, projectID int64, to, cc []string) ([]mail.RecipientSpec, error) {
	specs := make([]mail.RecipientSpec, 0, len(to)+len(cc))
	for _, name := range to {
		a, err := identity.GetAgentByName(ctx, db, projectID, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, mail.RecipientSpec{AgentID: a.ID, Kind: "to"})
	}
	for _, name := range cc {
		a, err := identity.GetAgentByName(ctx, db, projectID, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, mail.RecipientSpec{AgentID: a.ID, Kind: "cc"})
	}
	return specs, nil
}

func mailSend(args []string) error {
	fs := flag.NewFlagSet("mail send", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	from := fs.String("from", "", "sender agent name")
	to := fs.String("to", "", "comma-separated recipient agent names")
	cc := fs.String("cc", "", "comma-separated cc agent names")
	subject := fs.String("subject", "", "subject line")
	body := fs.String("body", "", "message body (markdown)")
	thread := fs.String("thread", "", "thread id, defaults to a new one")
	importance := fs.String("importance", "normal", "low|normal|high|urgent")
	ackRequired := fs.Bool("ack-required", false, "require acknowledgement")
	attach := fs.String("attach", "", "comma-separated sha256 attachment digests")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	sender, err := resolveAgent(ctx, e.db, proj.ID, *from)
	if err != nil {
		audit.LogFailure(audit.OpSendMessage, *project, *from, err)
		return err
	}
	specs, err := recipientSpecs(ctx, e.db, proj.ID, splitCSV(*to), splitCSV(*cc))
	if err != nil {
		audit.LogFailure(audit.OpSendMessage, *project, *from, err)
		return err
	}
	msg, err := mail.SendMessage(ctx, e.db, proj.ID, sender.ID, specs, *thread, *subject, *body, *importance, *ackRequired, splitCSV(*attach))
	if err != nil {
		audit.LogFailure(audit.OpSendMessage, *project, *from, err)
		return err
	}
	audit.LogSuccess(audit.OpSendMessage, *project, *from)
	return printJSON(msg)
}

func mailInbox(args []string) error {
	fs := flag.NewFlagSet("mail inbox", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	limit := fs.Int("limit", 50, "max messages")
	asJSON := fs.Bool("json", true, "emit JSON (default on)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		return err
	}
	msgs, err := mail.FetchInbox(ctx, e.db, agent.ID, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(msgs)
	}
	return printMessagesTable(msgs)
}

func printMessagesTable(msgs []*mail.Message) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTHREAD\tSUBJECT\tIMPORTANCE\tACK?")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\n", m.ID, m.ThreadID, m.Subject, m.Importance, m.AckRequired)
	}
	return tw.Flush()
}

func mailReply(args []string) error {
	fs := flag.NewFlagSet("mail reply", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	from := fs.String("from", "", "sender agent name")
	inReplyTo := fs.Int64("in-reply-to", 0, "message id being replied to")
	to := fs.String("to", "", "comma-separated recipient agent names")
	cc := fs.String("cc", "", "comma-separated cc agent names")
	subject := fs.String("subject", "", "subject line, defaults to Re: original")
	body := fs.String("body", "", "message body (markdown)")
	importance := fs.String("importance", "normal", "low|normal|high|urgent")
	ackRequired := fs.Bool("ack-required", false, "require acknowledgement")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *inReplyTo == 0 {
		return usagef("--in-reply-to is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	sender, err := resolveAgent(ctx, e.db, proj.ID, *from)
	if err != nil {
		audit.LogFailure(audit.OpReplyMessage, *project, *from, err)
		return err
	}
	specs, err := recipientSpecs(ctx, e.db, proj.ID, splitCSV(*to), splitCSV(*cc))
	if err != nil {
		audit.LogFailure(audit.OpReplyMessage, *project, *from, err)
		return err
	}
	msg, err := mail.ReplyMessage(ctx, e.db, proj.ID, sender.ID, *inReplyTo, specs, *subject, *body, *importance, *ackRequired, nil)
	if err != nil {
		audit.LogFailure(audit.OpReplyMessage, *project, *from, err)
		return err
	}
	audit.LogSuccess(audit.OpReplyMessage, *project, *from)
	return printJSON(msg)
}

func mailAck(args []string) error {
	fs := flag.NewFlagSet("mail ack", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	messageID := fs.Int64("message", 0, "message id")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *messageID == 0 {
		return usagef("--message is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpAcknowledgeMessage, *project, *agentName, err)
		return err
	}
	if err := mail.AcknowledgeMessage(ctx, e.db, *messageID, agent.ID); err != nil {
		audit.LogFailure(audit.OpAcknowledgeMessage, *project, *agentName, err)
		return err
	}
	audit.LogSuccess(audit.OpAcknowledgeMessage, *project, *agentName)
	return printJSON(map[string]any{"acknowledged": true})
}

func mailSearch(args []string) error {
	fs := flag.NewFlagSet("mail search", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	query := fs.String("query", "", "search query")
	limit := fs.Int("limit", 50, "max results")
	_ = fs.Bool("json", true, "emit JSON (the only output format here)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	rows, err := mail.SearchMessages(ctx, e.db, proj.ID, *query, *limit)
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func mailSummarize(args []string) error {
	fs := flag.NewFlagSet("mail summarize", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	thread := fs.String("thread", "", "thread id")
	_ = fs.Bool("json", true, "emit JSON (the only output format here)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *thread == "" {
		return usagef("--thread is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	summary, err := mail.SummarizeThread(ctx, e.db, proj.ID, *thread)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// ---- file_reservations ----

func runFileReservations(args []string) error {
	if len(args) == 0 {
		return usagef("file_reservations requires a subcommand: reserve, release, list")
	}
	switch args[0] {
	case "reserve":
		return reservationsReserve(args[1:])
	case "release":
		return reservationsRelease(args[1:])
	case "list":
		return reservationsList(args[1:])
	default:
		return usagef("unknown file_reservations subcommand: %s", args[0])
	}
}

func reservationsReserve(args []string) error {
	fs := flag.NewFlagSet("file_reservations reserve", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	pattern := fs.String("paths", "", "comma-separated glob path patterns")
	exclusive := fs.Bool("exclusive", false, "exclusive reservation")
	reason := fs.String("reason", "", "reason")
	ttlSeconds := fs.Int64("ttl-seconds", 7200, "time-to-live in seconds")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *pattern == "" {
		return usagef("--paths is required")
	}
	paths := strings.Split(*pattern, ",")

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpReserveFilePaths, *project, *agentName, err)
		return err
	}
	expires := store.Now().Add(time.Duration(*ttlSeconds) * time.Second)
	res, err := reservations.ReserveFilePaths(ctx, e.db, proj.ID, agent.ID, paths, *exclusive, *reason, expires)
	if err != nil {
		audit.LogFailure(audit.OpReserveFilePaths, *project, *agentName, err)
		return err
	}
	audit.LogSuccess(audit.OpReserveFilePaths, *project, *agentName)
	return printJSON(res)
}

func reservationsRelease(args []string) error {
	fs := flag.NewFlagSet("file_reservations release", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	id := fs.Int64("id", 0, "reservation id, releases only this one")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpReleaseReservation, *project, *agentName, err)
		return err
	}

	var released int
	if *id != 0 {
		if err := reservations.ReleaseReservation(ctx, e.db, *id, agent.ID); err != nil {
			audit.LogFailure(audit.OpReleaseReservation, *project, *agentName, err)
			return err
		}
		released = 1
	} else {
		released, err = reservations.ReleaseAllForAgent(ctx, e.db, proj.ID, agent.ID)
		if err != nil {
			audit.LogFailure(audit.OpReleaseReservation, *project, *agentName, err)
			return err
		}
	}
	audit.LogSuccess(audit.OpReleaseReservation, *project, *agentName)
	return printJSON(map[string]any{"released": released})
}

func reservationsList(args []string) error {
	fs := flag.NewFlagSet("file_reservations list", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	_ = fs.Bool("json", true, "emit JSON (the only output format here)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	list, err := views.FileReservationsView(ctx, e.db, proj.ID)
	if err != nil {
		return err
	}
	return printJSON(list)
}

// ---- agents ----

func runAgents(args []string) error {
	if len(args) == 0 {
		return usagef("agents requires a subcommand: list, register")
	}
	switch args[0] {
	case "list":
		return agentsList(args[1:])
	case "register":
		return agentsRegister(args[1:])
	default:
		return usagef("unknown agents subcommand: %s", args[0])
	}
}

func agentsList(args []string) error {
	fs := flag.NewFlagSet("agents list", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	asJSON := fs.Bool("json", true, "emit JSON (default on)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agents, err := views.AgentsView(ctx, e.db, proj.ID)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(agents)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROGRAM\tMODEL\tCONTACT_POLICY")
	for _, a := range agents {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Program, a.Model, a.ContactPolicy)
	}
	return tw.Flush()
}

func agentsRegister(args []string) error {
	fs := flag.NewFlagSet("agents register", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	name := fs.String("name", "", "agent name")
	program := fs.String("program", "", "program identifier")
	model := fs.String("model", "", "model identifier")
	task := fs.String("task", "", "task description")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	agent, err := identity.RegisterAgent(ctx, e.db, *project, *name, *program, *model, *task)
	if err != nil {
		audit.LogFailure(audit.OpRegisterAgent, *project, *name, err)
		return err
	}
	audit.LogSuccess(audit.OpRegisterAgent, *project, *name)
	return printJSON(agent)
}

// ---- robot (agent-facing lifecycle: identity creation, contacts, build slots) ----

func runRobot(args []string) error {
	if len(args) == 0 {
		return usagef("robot requires a subcommand: create, set-policy, request-contact, respond-contact, list-contacts, acquire-build-slot, renew-build-slot, release-build-slot")
	}
	switch args[0] {
	case "create":
		return robotCreate(args[1:])
	case "set-policy":
		return robotSetPolicy(args[1:])
	case "request-contact":
		return robotRequestContact(args[1:])
	case "respond-contact":
		return robotRespondContact(args[1:])
	case "list-contacts":
		return robotListContacts(args[1:])
	case "acquire-build-slot":
		return robotAcquireBuildSlot(args[1:])
	case "renew-build-slot":
		return robotRenewBuildSlot(args[1:])
	case "release-build-slot":
		return robotReleaseBuildSlot(args[1:])
	default:
		return usagef("unknown robot subcommand: %s", args[0])
	}
}

func robotCreate(args []string) error {
	fs := flag.NewFlagSet("robot create", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	program := fs.String("program", "", "program identifier")
	model := fs.String("model", "", "model identifier")
	task := fs.String("task", "", "task description")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	agent, err := identity.CreateAgentIdentity(ctx, e.db, *project, *program, *model, *task)
	if err != nil {
		audit.LogFailure(audit.OpCreateAgentIdentity, *project, "", err)
		return err
	}
	audit.LogSuccess(audit.OpCreateAgentIdentity, *project, agent.Name)
	return printJSON(agent)
}

func robotSetPolicy(args []string) error {
	fs := flag.NewFlagSet("robot set-policy", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	policy := fs.String("policy", "", "open|contacts_only|blocked")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpSetContactPolicy, *project, *agentName, err)
		return err
	}
	if err := identity.SetContactPolicy(ctx, e.db, agent.ID, *policy); err != nil {
		audit.LogFailure(audit.OpSetContactPolicy, *project, *agentName, err)
		return err
	}
	audit.LogSuccess(audit.OpSetContactPolicy, *project, *agentName)
	return printJSON(map[string]any{"ok": true})
}

func robotRequestContact(args []string) error {
	fs := flag.NewFlagSet("robot request-contact", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	from := fs.String("from", "", "requesting agent name")
	to := fs.String("to", "", "target agent name")
	reason := fs.String("reason", "", "reason")
	ttlSeconds := fs.Int64("ttl-seconds", 24*60*60, "time-to-live in seconds")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	fromAgent, err := resolveAgent(ctx, e.db, proj.ID, *from)
	if err != nil {
		audit.LogFailure(audit.OpRequestContact, *project, *from, err)
		return err
	}
	toAgent, err := resolveAgent(ctx, e.db, proj.ID, *to)
	if err != nil {
		audit.LogFailure(audit.OpRequestContact, *project, *from, err)
		return err
	}
	expires := store.Now().Add(time.Duration(*ttlSeconds) * time.Second)
	contact, err := identity.RequestContact(ctx, e.db, proj.ID, fromAgent.ID, toAgent.ID, *reason, expires)
	if err != nil {
		audit.LogFailure(audit.OpRequestContact, *project, *from, err)
		return err
	}
	audit.LogSuccess(audit.OpRequestContact, *project, *from)
	return printJSON(contact)
}

func robotRespondContact(args []string) error {
	fs := flag.NewFlagSet("robot respond-contact", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	from := fs.String("from", "", "responding agent name")
	to := fs.String("to", "", "original requester agent name")
	approve := fs.Bool("approve", false, "approve the request")
	deny := fs.Bool("deny", false, "deny the request")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *approve == *deny {
		return usagef("exactly one of --approve or --deny is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	fromAgent, err := resolveAgent(ctx, e.db, proj.ID, *from)
	if err != nil {
		audit.LogFailure(audit.OpRespondContact, *project, *from, err)
		return err
	}
	toAgent, err := resolveAgent(ctx, e.db, proj.ID, *to)
	if err != nil {
		audit.LogFailure(audit.OpRespondContact, *project, *from, err)
		return err
	}
	contact, err := identity.RespondContact(ctx, e.db, proj.ID, toAgent.ID, fromAgent.ID, *approve)
	if err != nil {
		audit.LogFailure(audit.OpRespondContact, *project, *from, err)
		return err
	}
	audit.LogSuccess(audit.OpRespondContact, *project, *from)
	return printJSON(contact)
}

func robotListContacts(args []string) error {
	fs := flag.NewFlagSet("robot list-contacts", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	_ = fs.Bool("json", true, "emit JSON (the only output format here)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		return err
	}
	contacts, err := identity.ListContacts(ctx, e.db, agent.ID)
	if err != nil {
		return err
	}
	return printJSON(contacts)
}

func robotAcquireBuildSlot(args []string) error {
	fs := flag.NewFlagSet("robot acquire-build-slot", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	slot := fs.String("slot", "", "slot name")
	exclusive := fs.Bool("exclusive", false, "exclusive hold")
	ttlSeconds := fs.Int64("ttl-seconds", 15*60, "time-to-live in seconds")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *slot == "" {
		return usagef("--slot is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpAcquireBuildSlot, *project, *agentName, err)
		return err
	}
	res, err := reservations.AcquireBuildSlot(ctx, e.db, proj.ID, agent.ID, *slot, *exclusive, time.Duration(*ttlSeconds)*time.Second)
	if err != nil {
		audit.LogFailure(audit.OpAcquireBuildSlot, *project, *agentName, err)
		return err
	}
	audit.LogSuccess(audit.OpAcquireBuildSlot, *project, *agentName)
	return printJSON(res)
}

func robotRenewBuildSlot(args []string) error {
	fs := flag.NewFlagSet("robot renew-build-slot", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	slot := fs.String("slot", "", "slot name")
	ttlSeconds := fs.Int64("ttl-seconds", 15*60, "time-to-live in seconds")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *slot == "" {
		return usagef("--slot is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpRenewBuildSlot, *project, *agentName, err)
		return err
	}
	expires, err := reservations.RenewBuildSlot(ctx, e.db, proj.ID, agent.ID, *slot, time.Duration(*ttlSeconds)*time.Second)
	if err != nil {
		audit.LogFailure(audit.OpRenewBuildSlot, *project, *agentName, err)
		return err
	}
	audit.LogSuccess(audit.OpRenewBuildSlot, *project, *agentName)
	return printJSON(map[string]any{"renewed": true, "expires_ts": expires})
}

func robotReleaseBuildSlot(args []string) error {
	fs := flag.NewFlagSet("robot release-build-slot", flag.ContinueOnError)
	project := fs.String("project", "", "project key")
	agentName := fs.String("agent", "", "agent name")
	slot := fs.String("slot", "", "slot name")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}
	if *slot == "" {
		return usagef("--slot is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	proj, err := resolveProject(ctx, e.db, *project)
	if err != nil {
		return err
	}
	agent, err := resolveAgent(ctx, e.db, proj.ID, *agentName)
	if err != nil {
		audit.LogFailure(audit.OpReleaseBuildSlot, *project, *agentName, err)
		return err
	}
	if err := reservations.ReleaseBuildSlot(ctx, e.db, proj.ID, agent.ID, *slot); err != nil {
		audit.LogFailure(audit.OpReleaseBuildSlot, *project, *agentName, err)
		return err
	}
	audit.LogSuccess(audit.OpReleaseBuildSlot, *project, *agentName)
	return printJSON(map[string]any{"released": true})
}

// ---- doctor ----

func runDoctor(args []string) error {
	if len(args) == 0 || args[0] != "check" {
		return usagef("doctor requires the check subcommand")
	}
	fs := flag.NewFlagSet("doctor check", flag.ContinueOnError)
	auditFlag := fs.Bool("audit", false, "add a note on where audit events are written")
	asJSON := fs.Bool("json", true, "emit JSON (default on)")
	if err := fs.Parse(args[1:]); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	report := map[string]any{}
	if err := e.db.Health(ctx); err != nil {
		report["database"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		report["database"] = map[string]any{"ok": true}
	}
	migrations, err := e.db.ListMigrations()
	if err != nil {
		return err
	}
	report["migrations"] = migrations
	report["storage_root"] = e.cfg.StorageRoot

	if *auditFlag {
		report["audit_log_note"] = "audit events are written as structured JSON on stdout by every mutating subcommand; no separate log file is read here"
	}

	if !*asJSON {
		fmt.Println("database:", report["database"])
		fmt.Println("migrations:", migrations)
		return nil
	}
	return printJSON(report)
}

// ---- setup ----

func runSetup(args []string) error {
	if len(args) == 0 {
		return usagef("setup requires a subcommand: run, status")
	}
	fs := flag.NewFlagSet("setup "+args[0], flag.ContinueOnError)
	configPath := fs.String("config", defaultClientConfigPath(), "client config file path")
	transport := fs.String("transport", "stdio", "stdio|http")
	binPath := fs.String("bin", "am-server", "path to the serve-stdio binary, for the stdio transport form")
	if err := fs.Parse(args[1:]); err != nil {
		return &usageErr{msg: err.Error()}
	}

	cfg, err := config.Load()
	if err != nil {
		return usagef("config: %v", err)
	}

	var entry clientconfig.ServerEntry
	switch *transport {
	case "stdio":
		entry = clientconfig.StdioEntry(*binPath, cfg)
	case "http":
		entry = clientconfig.HTTPEntry(cfg)
	default:
		return usagef("--transport must be stdio or http, got %q", *transport)
	}

	switch args[0] {
	case "run":
		backupPath, err := clientconfig.Run(*configPath, entry, clientconfig.NowTimestamp())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"config_path": *configPath, "backup_path": backupPath})
	case "status":
		status, err := clientconfig.CheckStatus(*configPath, entry)
		if err != nil {
			return err
		}
		return printJSON(status)
	default:
		return usagef("unknown setup subcommand: %s", args[0])
	}
}

func defaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcp-client-config.json"
	}
	return home + "/.config/mcp-agent-mail/client.json"
}

// ---- list-projects ----

func runListProjects(args []string) error {
	fs := flag.NewFlagSet("list-projects", flag.ContinueOnError)
	asJSON := fs.Bool("json", true, "emit JSON (default on)")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := context.Background()

	projects, err := views.ProjectsView(ctx, e.db)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(projects)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tHUMAN_KEY")
	for _, p := range projects {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Slug, p.HumanKey)
	}
	return tw.Flush()
}

// ---- migrate ----

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	backupDir := fs.String("backup-dir", "", "directory for the pre-migration snapshot, defaults to <storage_root>/backups")
	if err := fs.Parse(args); err != nil {
		return &usageErr{msg: err.Error()}
	}

	cfg, err := config.Load()
	if err != nil {
		return usagef("config: %v", err)
	}
	dir := *backupDir
	if dir == "" {
		dir = cfg.StorageRoot + "/backups"
	}

	mgr, err := backup.New(backup.Config{
		DBPath:      cfg.DBPath(),
		StorageRoot: cfg.StorageRoot,
		BackupDir:   dir,
		Retention:   5,
	})
	if err != nil {
		return fmt.Errorf("setting up backup manager: %w", err)
	}
	snapshot, err := mgr.BackupNow()
	if err != nil {
		return fmt.Errorf("pre-migration snapshot: %w", err)
	}

	// store.Open runs every pending migration as part of opening the
	// database, so the snapshot above is the pre-migration state and this
	// open is the migration step itself.
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	migrations, err := db.ListMigrations()
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"snapshot":   snapshot,
		"migrations": migrations,
	})
}
