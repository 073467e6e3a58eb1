package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blackwell-systems/stackup/internal/credentials"
	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/store"
)

var (
	credRevealFlag bool
	credLength     int
	credForce      bool

	credentialsCmd = &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage generated passwords and other secrets",
		Long: `Credentials are stored per application as KEY=value pairs. Install
scripts receive their unit's credentials as environment variables and can
call these commands through $STACKUP_BIN to generate or read secrets
owned by other units.`,
	}

	credSetCmd = &cobra.Command{
		Use:   "set <app> <key> [value]",
		Short: "Store a credential",
		Long: `Store a credential. Without a value argument the value is read from
stdin; on a terminal the input is hidden.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runCredSet,
	}

	credGetCmd = &cobra.Command{
		Use:   "get <app> <key>",
		Short: "Print a credential value",
		Args:  cobra.ExactArgs(2),
		RunE:  runCredGet,
	}

	credListCmd = &cobra.Command{
		Use:   "list",
		Short: "List applications with stored credentials",
		Args:  cobra.NoArgs,
		RunE:  runCredList,
	}

	credShowCmd = &cobra.Command{
		Use:   "show <app>",
		Short: "Show an application's credentials, masked",
		Args:  cobra.ExactArgs(1),
		RunE:  runCredShow,
	}

	credGenerateCmd = &cobra.Command{
		Use:   "generate <app> <key>",
		Short: "Generate a random secret unless one exists, and print it",
		Example: `  # In an install script
  POSTGRES_PASSWORD=$("$STACKUP_BIN" credentials generate postgres POSTGRES_PASSWORD)`,
		Args: cobra.ExactArgs(2),
		RunE: runCredGenerate,
	}

	credDeleteCmd = &cobra.Command{
		Use:   "delete <app>",
		Short: "Delete every credential of an application",
		Args:  cobra.ExactArgs(1),
		RunE:  runCredDelete,
	}
)

func init() {
	credShowCmd.Flags().BoolVar(&credRevealFlag, "reveal", false, "print values in clear text")
	credGenerateCmd.Flags().IntVar(&credLength, "length", credentials.DefaultLength, "secret length")
	credGenerateCmd.Flags().BoolVar(&credForce, "force", false, "replace an existing value")

	credentialsCmd.AddCommand(credSetCmd, credGetCmd, credListCmd, credShowCmd, credGenerateCmd, credDeleteCmd)
	RootCmd.AddCommand(credentialsCmd)
}

// openCredentials opens only the configured credential backend, so install
// scripts can call these commands without loading the catalog.
func openCredentials() (credentials.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Credentials.Backend != "sqlite" {
		return credentials.NewFileStore(cfg.Credentials.Dir), func() {}, nil
	}

	st, err := store.Open(getDBPath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, func() { st.Close() }, nil
}

func runCredSet(cmd *cobra.Command, args []string) error {
	app, key := args[0], args[1]
	if err := credentials.CheckApp(app); err != nil {
		return err
	}
	if err := credentials.CheckKey(key); err != nil {
		return err
	}

	var value string
	if len(args) == 3 {
		value = args[2]
	} else {
		v, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("%s %s: ", app, key))
		if err != nil {
			return err
		}
		value = v
	}
	if value == "" {
		return errors.New("refusing to store an empty value")
	}

	creds, done, err := openCredentials()
	if err != nil {
		return err
	}
	defer done()

	if err := creds.Save(app, key, value); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved %s for %s\n", key, app)
	return nil
}

// readSecret reads one line from in. When in is a terminal the input is
// not echoed.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runCredGet(cmd *cobra.Command, args []string) error {
	creds, done, err := openCredentials()
	if err != nil {
		return err
	}
	defer done()

	all, err := creds.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	v, ok := all[args[1]]
	if !ok {
		return fmt.Errorf("no credential %s for %s", args[1], args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runCredList(cmd *cobra.Command, args []string) error {
	creds, done, err := openCredentials()
	if err != nil {
		return err
	}
	defer done()

	apps, err := creds.Apps()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(apps) == 0 {
		fmt.Fprintln(out, "No credentials stored.")
		return nil
	}
	for _, app := range apps {
		all, err := creds.Load(app)
		if err != nil {
			return fmt.Errorf("failed to load credentials for %s: %w", app, err)
		}
		fmt.Fprintf(out, "%-20s %d key(s)\n", app, len(all))
	}
	return nil
}

func runCredShow(cmd *cobra.Command, args []string) error {
	creds, done, err := openCredentials()
	if err != nil {
		return err
	}
	defer done()

	all, err := creds.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderCredentialTable(args[0], all, credRevealFlag))
	return nil
}

func runCredGenerate(cmd *cobra.Command, args []string) error {
	app, key := args[0], args[1]
	if err := credentials.CheckApp(app); err != nil {
		return err
	}
	if err := credentials.CheckKey(key); err != nil {
		return err
	}

	creds, done, err := openCredentials()
	if err != nil {
		return err
	}
	defer done()

	var value string
	if credForce {
		value, err = credentials.Generate(credLength)
		if err == nil {
			err = creds.Save(app, key, value)
		}
	} else {
		value, _, err = credentials.Ensure(creds, app, key, credLength)
	}
	if err != nil {
		return fmt.Errorf("failed to generate credential: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runCredDelete(cmd *cobra.Command, args []string) error {
	creds, done, err := openCredentials()
	if err != nil {
		return err
	}
	defer done()

	if err := creds.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Deleted credentials for %s\n", args[0])
	return nil
}
