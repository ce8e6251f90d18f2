package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/rekey"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mongoURI      string
	mongoDatabase string
	oldSecret     string
	newSecretFlag string
	dryRun        bool
)

// errFailures makes the command exit non-zero when some records could not
// be rotated.
var errFailures = errors.New("some applications were not re-encrypted")

var reencryptCmd = &cobra.Command{
	Use:   "reencrypt",
	Short: "Re-seal every stored application under a new secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := codecs(oldSecret, newSecretFlag)
		if err != nil {
			return err
		}
		if err := wafflemongo.ValidateURI(mongoURI); err != nil {
			return fmt.Errorf("invalid --mongo-uri: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetAppName("bourseskey"))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return fmt.Errorf("ping mongo: %w", err)
		}

		store := applicationstore.New(client.Database(mongoDatabase))
		rep, err := rekey.Run(ctx, store, from, to, dryRun, logger)
		printReport(cmd.OutOrStdout(), rep, dryRun)
		if err != nil {
			return err
		}
		if len(rep.Failures) > 0 {
			return errFailures
		}
		return nil
	},
}

func codecs(oldSecret, newSecret string) (*cipher.Codec, *cipher.Codec, error) {
	if oldSecret == "" || newSecret == "" {
		return nil, nil, errors.New("--old-secret and --new-secret are required")
	}
	if oldSecret == newSecret {
		return nil, nil, errors.New("--old-secret and --new-secret are identical")
	}
	from, err := cipher.NewFromSecret(oldSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("old secret: %w", err)
	}
	to, err := cipher.NewFromSecret(newSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("new secret: %w", err)
	}
	return from, to, nil
}

func printReport(w io.Writer, rep rekey.Report, dryRun bool) {
	verb := "re-encrypted"
	if dryRun {
		verb = "would re-encrypt"
	}
	fmt.Fprintf(w, "scanned %d, %s %d, already current %d, failed %d\n",
		rep.Scanned, verb, rep.Rekeyed, rep.Current, len(rep.Failures))
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.ID.Hex(), f.Err)
	}
}

func init() {
	rootCmd.AddCommand(reencryptCmd)
	reencryptCmd.Flags().StringVar(&mongoURI, "mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	reencryptCmd.Flags().StringVar(&mongoDatabase, "mongo-database", "bourses", "MongoDB database name")
	reencryptCmd.Flags().StringVar(&oldSecret, "old-secret", "", "Secret the payloads are currently sealed with")
	reencryptCmd.Flags().StringVar(&newSecretFlag, "new-secret", "", "Secret to re-seal the payloads with")
	reencryptCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decode and re-encode without writing")
}
