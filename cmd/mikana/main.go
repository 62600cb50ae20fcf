package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/mikana/dashboard/internal/api"
	"github.com/mikana/dashboard/internal/features"
	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/history"
	"github.com/mikana/dashboard/internal/store"
)

type CLI struct {
	EnvFile kongdotenv.ENVFileConfig `name:"env-file" default:".env" help:"Path to a .env file."`
	DB      string                   `default:"data/mikana.db" env:"MIKANA_DB" help:"Path to SQLite database."`

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the dashboard server."`
	History HistoryCmd `cmd:"" help:"Inspect persisted prediction history."`
}

type ServeCmd struct {
	Port            string        `default:"8080" env:"MIKANA_PORT" help:"HTTP server port."`
	ForecastURL     string        `default:"http://localhost:8000" env:"MIKANA_FORECAST_URL" help:"Forecast service base URL."`
	RegistryURL     string        `default:"http://localhost:8001" env:"MIKANA_REGISTRY_URL" help:"Model registry base URL."`
	Timeout         time.Duration `default:"30s" env:"MIKANA_TIMEOUT" help:"Per-call upstream timeout."`
	Fanout          int           `default:"8" env:"MIKANA_FANOUT" help:"Concurrent historical lookups per forecast."`
	CORSOrigins     []string      `name:"cors-origins" env:"MIKANA_CORS_ORIGINS" help:"Allowed CORS origins for the JSON API."`
	Factors         []string      `env:"MIKANA_FACTORS" help:"Additional forecasting factors to enable (weather, holidays, season)."`
	FolderUpload    bool          `env:"MIKANA_FOLDER_UPLOAD" help:"Offer folder uploads on the performance page."`
	Maintenance     bool          `env:"MIKANA_MAINTENANCE" help:"Expose the maintenance page."`
	Timezone        string        `default:"Local" env:"MIKANA_TIMEZONE" help:"Timezone for report timestamps."`
	CatalogInterval time.Duration `default:"15m" env:"MIKANA_CATALOG_INTERVAL" help:"Catalog refresh interval."`
	MaxWorkspaces   int           `default:"256" env:"MIKANA_MAX_WORKSPACES" help:"Client workspaces kept in memory."`
}

type HistoryCmd struct {
	List  HistoryListCmd  `cmd:"" help:"List clients with stored history."`
	Clear HistoryClearCmd `cmd:"" help:"Delete the stored history of a client."`
}

type HistoryListCmd struct{}

type HistoryClearCmd struct {
	Client string `arg:"" help:"Client id."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("mikana"),
		kong.Description("Operations dashboard for the Mikana laundry forecasting services."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

func openStore(path string) (*store.Store, func(), error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func (c *ServeCmd) Run(cli *CLI) error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using UTC: %v", c.Timezone, err)
		loc = time.UTC
	}

	st, closeDB, err := openStore(cli.DB)
	if err != nil {
		return err
	}
	defer closeDB()
	log.Println("database migrated")

	caps := features.WithFactors(c.Factors)
	caps.FolderUpload = c.FolderUpload
	caps.MaintenanceRoute = c.Maintenance

	client := forecastapi.New(forecastapi.Config{
		ForecastURL: c.ForecastURL,
		RegistryURL: c.RegistryURL,
		Timeout:     c.Timeout,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	catalog := forecastapi.NewCatalog(client, c.CatalogInterval)
	if err := catalog.Warm(ctx); err != nil {
		log.Printf("catalog: warm failed, serving empty lists until next refresh: %v", err)
	}
	go catalog.Run(ctx)

	server, err := api.NewServer(st, client, catalog, api.Config{
		Port:          c.Port,
		Location:      loc,
		Capabilities:  caps,
		Fanout:        c.Fanout,
		MaxWorkspaces: c.MaxWorkspaces,
		CORSOrigins:   c.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	log.Printf("starting server on :%s", c.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (c *HistoryListCmd) Run(cli *CLI) error {
	st, closeDB, err := openStore(cli.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	clients, err := st.ListClients(history.Key)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT\tSESSIONS\tUPDATED")
	for _, cs := range clients {
		sessions := "?"
		if h, err := history.Open(st.ClientStorage(cs.ClientID)); err == nil {
			sessions = fmt.Sprint(h.Len())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cs.ClientID, sessions, cs.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (c *HistoryClearCmd) Run(cli *CLI) error {
	st, closeDB, err := openStore(cli.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := st.DeleteState(c.Client, history.Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	log.Printf("cleared history for %s", c.Client)
	return nil
}
