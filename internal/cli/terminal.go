package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"finboard/internal/apiclient"
	"finboard/internal/charts"
	"finboard/internal/config"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/services"
	"finboard/internal/session"
	"finboard/internal/storage"
	"finboard/internal/tokenstore"
)

const usage = `usage: finboard-cli [flags] <command> [command flags]

commands:
  login          sign in and remember the session
  signup         create an account and sign in
  logout         sign out and forget the session
  whoami         show the signed-in user
  summary        print totals and category charts
  budgets        print this month's budget usage
  transactions   list transactions

flags:
`

const barWidth = 40

// Env is everything a terminal run reads from and writes to.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config

	// Backend replaces the on-disk token file when set.
	Backend    tokenstore.Backend
	HTTPClient *http.Client
}

type terminal struct {
	env     Env
	in      *bufio.Reader
	logger  *log.Logger
	client  *apiclient.Client
	session *session.Controller
	styles  charts.Styles
	closers []func() error
}

type command func(ctx context.Context, t *terminal, args []string) int

var commands = map[string]command{
	"login":        runLogin,
	"signup":       runSignup,
	"logout":       runLogout,
	"whoami":       runWhoami,
	"summary":      runSummary,
	"budgets":      runBudgets,
	"transactions": runTransactions,
}

// Run executes one finboard-cli invocation and returns its exit code. Tokens
// are kept per profile, so separate accounts can stay signed in side by side.
func Run(ctx context.Context, args []string, env Env) int {
	if env.Config == nil {
		env.Config = config.Load()
	}
	if env.Stdin == nil {
		env.Stdin = os.Stdin
	}
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}

	fs := flag.NewFlagSet("finboard-cli", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	api := fs.String("api", env.Config.APIBaseURL, "backend base URL")
	tokenFile := fs.String("tokens", defaultTokenFile(), "file holding the saved session")
	profile := fs.String("profile", "default", "saved session to use")
	verbose := fs.Bool("v", false, "log requests to stderr")
	fs.Usage = func() {
		fmt.Fprint(env.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(env.Stderr, "unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	level := log.ParseLevel("warn")
	if *verbose {
		level = log.ParseLevel("debug")
	}
	logger := log.New(log.Config{Level: level, Format: "text", Component: log.ComponentCLI, Output: env.Stderr})

	t, err := open(ctx, env, logger, *api, *tokenFile, *profile)
	if err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
		return 1
	}
	defer t.close()
	return cmd(ctx, t, fs.Args()[1:])
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".finboard-tokens.db"
	}
	return filepath.Join(dir, "finboard", "tokens.db")
}

func open(ctx context.Context, env Env, logger *log.Logger, api, tokenFile, profile string) (*terminal, error) {
	t := &terminal{
		env:    env,
		in:     bufio.NewReader(env.Stdin),
		logger: logger,
		styles: charts.DefaultStyles(),
	}

	b := env.Backend
	if b == nil {
		repo, err := storage.NewSQLiteRepository(tokenFile, logger)
		if err != nil {
			return nil, fmt.Errorf("open token file: %w", err)
		}
		t.closers = append(t.closers, repo.Close)
		b = repo
	}
	cipher, err := tokenstore.NewCipher(env.Config.TokenObfuscationKey)
	if err != nil {
		t.close()
		return nil, err
	}
	namespace := "cli:" + profile
	store := tokenstore.New(b, namespace, cipher, logger)

	client, err := apiclient.New(apiclient.Config{
		BaseURL:        api,
		Timeout:        env.Config.APITimeout,
		RefreshTimeout: env.Config.APIRefreshTimeout,
		HTTPClient:     env.HTTPClient,
		Logger:         logger,
	}, store)
	if err != nil {
		t.close()
		return nil, err
	}
	t.closers = append(t.closers, client.Close)
	if err := client.Init(ctx); err != nil {
		t.close()
		return nil, err
	}
	t.client = client
	t.session = session.New(client, session.Options{SessionID: namespace, Logger: logger})
	return t, nil
}

// close runs the closers in reverse order of opening.
func (t *terminal) close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil {
			t.logger.Warn("Close failed", log.FieldError, err)
		}
	}
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.env.Stdout, format, args...)
}

func (t *terminal) errorf(format string, args ...any) int {
	fmt.Fprintf(t.env.Stderr, format+"\n", args...)
	return 1
}

// prompt prints label and reads one line.
func (t *terminal) prompt(label string) (string, error) {
	fmt.Fprint(t.env.Stderr, label)
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// password reads without echo from a terminal, or a plain line otherwise.
func (t *terminal) password() (string, error) {
	if f, ok := t.env.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(t.env.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(t.env.Stderr)
		return string(b), err
	}
	return t.prompt("Password: ")
}

// describe is the message printed for a failed request.
func describe(err error, fallback string) string {
	if apiclient.IsSessionExpired(err) {
		return "Session expired, run finboard-cli login"
	}
	var failure *services.Failure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	return apiclient.ErrorMessage(err, fallback)
}

// signedIn restores the saved session, printing why when there is none.
func (t *terminal) signedIn(ctx context.Context) (core.User, bool) {
	res := t.session.Initialize(ctx)
	switch res.Status {
	case session.StatusAuthenticated:
		return res.User, true
	case session.StatusUnauthenticated:
		t.errorf("Not signed in, run finboard-cli login")
	default:
		t.errorf("Session could not be restored: %s", res.Reason)
	}
	return core.User{}, false
}

func runLogin(ctx context.Context, t *terminal, args []string) int {
	return authenticate(ctx, t, "login", args, t.session.Login)
}

func runSignup(ctx context.Context, t *terminal, args []string) int {
	return authenticate(ctx, t, "signup", args, t.session.Register)
}

func authenticate(ctx context.Context, t *terminal, name string, args []string,
	submit func(ctx context.Context, email, password string) (bool, error)) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(t.env.Stderr)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	form := core.AuthForm{Email: strings.TrimSpace(*email)}
	if form.Email == "" {
		v, err := t.prompt("Email: ")
		if err != nil {
			return t.errorf("read email: %v", err)
		}
		form.Email = strings.TrimSpace(v)
	}
	pw, err := t.password()
	if err != nil {
		return t.errorf("read password: %v", err)
	}
	form.Password = pw

	if errs := core.ValidateForm(form); len(errs) > 0 {
		for _, field := range []string{"email", "password"} {
			if msg, ok := errs[field]; ok {
				fmt.Fprintln(t.env.Stderr, msg)
			}
		}
		return 1
	}

	ok, err := submit(ctx, form.Email, form.Password)
	if err != nil {
		return t.errorf("%s", describe(err, "Sign in failed"))
	}
	if !ok {
		return t.errorf("%s", t.session.Message())
	}
	user, _ := t.session.User()
	t.printf("Signed in as %s\n", user.Email)
	return 0
}

func runLogout(ctx context.Context, t *terminal, _ []string) int {
	refresh, err := t.client.RefreshToken(ctx)
	if err != nil {
		return t.errorf("read session: %v", err)
	}
	if refresh == "" && t.client.AccessToken() == "" {
		t.printf("Not signed in\n")
		return 0
	}
	if err := t.session.Logout(ctx); err != nil {
		return t.errorf("%v", err)
	}
	t.session.Wait()
	t.printf("Signed out\n")
	return 0
}

func runWhoami(ctx context.Context, t *terminal, _ []string) int {
	user, ok := t.signedIn(ctx)
	if !ok {
		return 1
	}
	t.printf("%s\n", user.Email)
	return 0
}

func runSummary(ctx context.Context, t *terminal, _ []string) int {
	if _, ok := t.signedIn(ctx); !ok {
		return 1
	}
	s, err := services.NewSummaryService(t.client, t.logger).Summary(ctx)
	if err != nil {
		return t.errorf("%s", describe(err, "Failed to fetch summary"))
	}
	t.printf("%s\n", charts.TermSummary(t.styles, s))
	return 0
}

func runBudgets(ctx context.Context, t *terminal, _ []string) int {
	if _, ok := t.signedIn(ctx); !ok {
		return 1
	}
	rows, err := services.NewSummaryService(t.client, t.logger).BudgetUsage(ctx)
	if err != nil {
		return t.errorf("%s", describe(err, "Failed to fetch budgets"))
	}
	if len(rows) == 0 {
		t.printf("No budgets this month\n")
		return 0
	}
	t.printf("%s\n", charts.TermBars(t.styles, "Budget usage", charts.UsageBars(rows), barWidth))
	return 0
}

func runTransactions(ctx context.Context, t *terminal, args []string) int {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	fs.SetOutput(t.env.Stderr)
	var q services.TransactionQuery
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.PageSize, "page-size", 0, "rows per page (backend default when 0)")
	fs.StringVar(&q.DateFrom, "from", "", "first date, YYYY-MM-DD")
	fs.StringVar(&q.DateTo, "to", "", "last date, YYYY-MM-DD")
	fs.StringVar(&q.Category, "category", "", "category name")
	fs.StringVar(&q.AmountMin, "min", "", "minimum amount")
	fs.StringVar(&q.AmountMax, "max", "", "maximum amount")
	kind := fs.String("type", "all", "income, expense or all")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	switch *kind {
	case "income", "expense":
		income := *kind == "income"
		q.IsIncome = &income
	case "all", "":
	default:
		return t.errorf("unknown type %q: use income, expense or all", *kind)
	}

	if _, ok := t.signedIn(ctx); !ok {
		return 1
	}
	page, err := services.NewTransactionService(t.client, t.logger).List(ctx, q)
	if err != nil {
		return t.errorf("%s", describe(err, "Failed to fetch transactions"))
	}
	if len(page.Data) == 0 {
		t.printf("No transactions\n")
		return 0
	}

	tw := tabwriter.NewWriter(t.env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCATEGORY\tAMOUNT\tNOTE")
	for _, tx := range page.Data {
		amount := "-" + tx.Amount.Display()
		if tx.IsIncome {
			amount = "+" + tx.Amount.Display()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tx.Date, tx.Category, amount, tx.Note)
	}
	if err := tw.Flush(); err != nil {
		return t.errorf("%v", err)
	}
	t.printf("%s\n", t.styles.Muted.Render(pageFooter(q.Page, page)))
	return 0
}

func pageFooter(current int, page core.TransactionPage) string {
	footer := fmt.Sprintf("page %d, %d transactions", current, page.Count)
	if page.Next != nil {
		footer += fmt.Sprintf(", next: -page %d", current+1)
	}
	return footer
}
