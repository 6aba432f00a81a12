package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/habit-tracker/go-auth"
	"github.com/habit-tracker/go-auth/metrics"
	"github.com/habit-tracker/go-auth/provider/memory"
)

type command struct {
	usage string
	run   func(ctx context.Context, app *App, args []string) (any, error)
}

var commands = map[string]command{
	"register":              {"--email --password [--name]", runRegister},
	"confirm":               {"--username --code", runConfirm},
	"resend":                {"--username", runResend},
	"signin":                {"--username --password", runSignIn},
	"complete-new-password": {"--username --password --new-password [--attr name=value]...", runCompleteNewPassword},
	"signout":               {"", runSignOut},
	"forgot":                {"--username", runForgot},
	"reset":                 {"--username --code --new-password", runReset},
	"change-password":       {"--old --new", runChangePassword},
	"whoami":                {"", runWhoAmI},
	"token":                 {"", runToken},
	"saved":                 {"", runSaved},
	"demo":                  {"[--email --password --name] (memory provider only)", runDemo},
	"metrics":               {"", runMetrics},
}

// Usage writes the command list to w.
func Usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: habitauth <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(w, "  %-22s %s\n", name, commands[name].usage)
	}
}

// Run executes the command named by args[0] and writes its result as JSON.
func Run(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		return auth.WrapError(auth.ErrInvalidInput, nil, map[string]any{"reason": "missing command"})
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return auth.WrapError(auth.ErrInvalidInput, nil, map[string]any{
			"reason":  "unknown command",
			"command": args[0],
		})
	}

	result, err := cmd.run(ctx, app, args[1:])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return auth.WrapError(auth.ErrInvalidInput, err, map[string]any{"command": fs.Name()})
	}
	return nil
}

func runRegister(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("register")
	email := fs.String("email", "", "email address, used as username")
	password := fs.String("password", "", "password")
	name := fs.String("name", "", "display name")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return app.Client.Register(ctx, *email, *password, *name)
}

func runConfirm(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("confirm")
	username := fs.String("username", "", "username")
	code := fs.String("code", "", "confirmation code")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	result, err := app.Client.ConfirmRegistration(ctx, *username, *code)
	if err != nil {
		return nil, err
	}
	return map[string]string{"result": result}, nil
}

func runResend(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("resend")
	username := fs.String("username", "", "username")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return app.Client.ResendConfirmationCode(ctx, *username)
}

func runSignIn(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("signin")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return app.Client.SignIn(ctx, *username, *password)
}

type attrFlag auth.Attributes

func (a attrFlag) String() string {
	pairs := make([]string, 0, len(a))
	for k, v := range a {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (a attrFlag) Set(value string) error {
	name, v, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("attribute %q is not name=value", value)
	}
	a[name] = v
	return nil
}

// runCompleteNewPassword signs in with the temporary password and answers
// the challenge in the same process, since the challenge session is not
// persisted.
func runCompleteNewPassword(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("complete-new-password")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "temporary password")
	newPassword := fs.String("new-password", "", "new password")
	attrs := attrFlag{}
	fs.Var(attrs, "attr", "required attribute as name=value (repeatable)")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	result, err := app.Client.SignIn(ctx, *username, *password)
	if err != nil {
		return nil, err
	}
	if result.NewPasswordRequired == nil {
		return result, nil
	}
	return app.Client.CompleteNewPassword(ctx, result.NewPasswordRequired, *newPassword, auth.Attributes(attrs))
}

func runSignOut(ctx context.Context, app *App, _ []string) (any, error) {
	ok, err := app.Client.SignOut(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"signedOut": ok}, nil
}

func runForgot(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("forgot")
	username := fs.String("username", "", "username")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return app.Client.ForgotPassword(ctx, *username)
}

func runReset(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("reset")
	username := fs.String("username", "", "username")
	code := fs.String("code", "", "reset code")
	newPassword := fs.String("new-password", "", "new password")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := app.Client.ConfirmPassword(ctx, *username, *code, *newPassword); err != nil {
		return nil, err
	}
	return map[string]string{"result": auth.ConfirmationSuccess}, nil
}

func runChangePassword(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("change-password")
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	result, err := app.Client.ChangePassword(ctx, *oldPassword, *newPassword)
	if err != nil {
		return nil, err
	}
	return map[string]string{"result": result}, nil
}

func runWhoAmI(ctx context.Context, app *App, _ []string) (any, error) {
	profile, ok, err := app.Client.RestoreSession(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"signedIn": ok, "user": profile, "state": app.Client.State()}, nil
}

func runToken(ctx context.Context, app *App, _ []string) (any, error) {
	token, err := app.Client.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"accessToken": token}, nil
}

func runSaved(ctx context.Context, app *App, _ []string) (any, error) {
	profile, ok, err := app.Client.SavedProfile(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"found": ok, "user": profile}, nil
}

// runDemo walks register, confirm, sign in, whoami and sign out against the
// in-process provider, reading the confirmation code directly from it.
func runDemo(ctx context.Context, app *App, args []string) (any, error) {
	fs := newFlagSet("demo")
	email := fs.String("email", "a@x.com", "email address")
	password := fs.String("password", "P@ssw0rd", "password")
	name := fs.String("name", "Ann", "display name")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	provider, ok := app.Provider.(*memory.Provider)
	if !ok {
		return nil, auth.WrapError(auth.ErrInvalidInput, nil, map[string]any{
			"command": "demo",
			"reason":  "requires HABIT_AUTH_PROVIDER=memory",
		})
	}

	steps := []map[string]any{}
	record := func(step string, value any) {
		steps = append(steps, map[string]any{"step": step, "result": value, "state": app.Client.State()})
	}

	registered, err := app.Client.Register(ctx, *email, *password, *name)
	if err != nil {
		return nil, err
	}
	record("register", registered)

	if !registered.UserConfirmed {
		code, _ := provider.ConfirmationCode(registered.Username)
		confirmed, err := app.Client.ConfirmRegistration(ctx, registered.Username, code)
		if err != nil {
			return nil, err
		}
		record("confirm", confirmed)
	}

	signedIn, err := app.Client.SignIn(ctx, *email, *password)
	if err != nil {
		return nil, err
	}
	record("signin", signedIn.Profile)

	profile, _, err := app.Client.GetCurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	record("whoami", profile)

	signedOut, err := app.Client.SignOut(ctx)
	if err != nil {
		return nil, err
	}
	record("signout", signedOut)

	counters, err := metrics.Counters(app.Metrics)
	if err != nil {
		return nil, err
	}
	record("metrics", counters)

	return steps, nil
}

// runMetrics prints the activity counters collected by this process.
func runMetrics(_ context.Context, app *App, _ []string) (any, error) {
	return metrics.Counters(app.Metrics)
}
