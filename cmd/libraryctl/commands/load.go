package commands

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/rongwang/library-server/internal/loader"
	"github.com/rongwang/library-server/internal/models"
	"github.com/rongwang/library-server/internal/notify"
	"github.com/rongwang/library-server/internal/repository"
	"github.com/rongwang/library-server/internal/service"
)

// loadCmd groups the bootstrap loaders
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace the catalog or the users from a CSV file",
	Long: `Replace the catalog or the users from a CSV file.

Every load deletes the existing rows first. Reloading books or users also
drops the wishlists and rentals that referenced them.`,
}

var loadBooksCmd = &cobra.Command{
	Use:   "books <csv>",
	Short: "Load books (Id, ISBN, Authors, Publication Year, Title, Language)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		books, err := loader.ReadBooksFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return runLoad(cmd, func(ctx context.Context, svc service.Service) (*models.LoadResult, error) {
			return svc.ReloadCatalog(ctx, books)
		})
	},
}

var loadUsersCmd = &cobra.Command{
	Use:   "users <csv>",
	Short: "Load users (User Name, User Type)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := loader.ReadUsersFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return runLoad(cmd, func(ctx context.Context, svc service.Service) (*models.LoadResult, error) {
			return svc.ReloadUsers(ctx, users)
		})
	},
}

func init() {
	loadCmd.AddCommand(loadBooksCmd, loadUsersCmd)
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, fn func(context.Context, service.Service) (*models.LoadResult, error)) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := repository.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := service.NewDefaultService(repo, notify.Nop{}, logger)
	result, err := fn(cmd.Context(), svc)
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), result)
}

func printResult(w io.Writer, result *models.LoadResult) error {
	if jsonOutput {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintf(w, "Inserted %d %s into the database.\n", result.Inserted, result.Kind)
	return err
}
