package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/api"
	"github.com/lox/openwindow/internal/ingest"
	"github.com/lox/openwindow/internal/models"
	"github.com/lox/openwindow/internal/narrative"
	"github.com/lox/openwindow/internal/poller"
	"github.com/lox/openwindow/internal/store"
)

type Globals struct {
	DB            string `name:"db" env:"OPENWINDOW_DB" default:"data/openwindow.db" help:"Path to SQLite database."`
	NoDB          bool   `name:"no-db" help:"Run without a database (no caching or history)."`
	Timezone      string `env:"OPENWINDOW_TZ" default:"UTC" help:"Timezone for stored timestamps shown by history commands."`
	WeatherURL    string `env:"OPENWINDOW_WEATHER_URL" default:"${weather_url}" help:"Open-Meteo forecast endpoint."`
	AirQualityURL string `env:"OPENWINDOW_AIR_QUALITY_URL" default:"${air_quality_url}" help:"Open-Meteo air quality endpoint."`
	GeocodeURL    string `env:"OPENWINDOW_GEOCODE_URL" default:"${geocode_url}" help:"Nominatim base URL."`
	UserAgent     string `env:"OPENWINDOW_USER_AGENT" default:"${user_agent}" help:"User-Agent sent to providers."`
	ForecastDays  int    `env:"OPENWINDOW_FORECAST_DAYS" default:"5" help:"Days of hourly forecast to request."`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the web server."`
	Check   CheckCmd   `cmd:"" help:"Evaluate one location and print its open-window periods."`
	Poll    PollCmd    `cmd:"" help:"Evaluate the watch locations on a schedule."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
	History HistoryCmd `cmd:"" help:"Show recent evaluations."`
	Stats   StatsCmd   `cmd:"" help:"Show provider ingest health and raw payload storage."`
	Cleanup CleanupCmd `cmd:"" help:"Delete old raw provider payloads."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("openwindow"),
		kong.Description("Finds the hours when it is worth opening the windows."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.Vars{
			"weather_url":     ingest.DefaultWeatherURL,
			"air_quality_url": ingest.DefaultAirQualityURL,
			"geocode_url":     ingest.DefaultGeocodeURL,
			"user_agent":      ingest.DefaultUserAgent,
			"schedule":        poller.DefaultSchedule,
		},
		thresholdVars(models.DefaultThresholds()),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func thresholdVars(th models.Thresholds) kong.Vars {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return kong.Vars{
		"min_temp":        f(th.MinOutdoorTempF),
		"max_temp":        f(th.MaxOutdoorTempF),
		"min_rh":          f(th.MinIndoorRH),
		"max_rh":          f(th.MaxIndoorRH),
		"indoor_ref_temp": f(th.IndoorReferenceTempF),
		"max_aqi":         strconv.Itoa(th.MaxAQI),
		"max_precip_prob": f(th.MaxPrecipProbabilityPercent),
	}
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using UTC: %v", g.Timezone, err)
		return time.UTC
	}
	return loc
}

// openStore returns nil when the database is disabled.
func (g *Globals) openStore() (*store.Store, error) {
	if g.NoDB {
		return nil, nil
	}
	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	st, err := store.Open(g.DB, g.location())
	if err != nil {
		return nil, err
	}
	log.Printf("database %s migrated", g.DB)
	return st, nil
}

func (g *Globals) requireStore() (*store.Store, error) {
	if g.NoDB {
		return nil, fmt.Errorf("this command needs a database; remove --no-db")
	}
	return g.openStore()
}

func (g *Globals) advisor(st *store.Store) *advisor.Advisor {
	weather := ingest.NewOpenMeteo(ingest.OpenMeteoConfig{
		WeatherURL:    g.WeatherURL,
		AirQualityURL: g.AirQualityURL,
		ForecastDays:  g.ForecastDays,
		UserAgent:     g.UserAgent,
	})
	geocoder := ingest.NewNominatim(g.GeocodeURL, g.UserAgent)
	return advisor.New(weather, geocoder, st)
}

func closeStore(st *store.Store) {
	if st != nil {
		st.Close()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type ServeCmd struct {
	Port         string `env:"PORT" default:"8080" help:"HTTP server port."`
	OpenAIAPIKey string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"Enables LLM-written summaries."`
	Locations    string `env:"OPENWINDOW_LOCATIONS" help:"Watch-location YAML file; when set the poller runs alongside the server."`
	Schedule     string `env:"OPENWINDOW_SCHEDULE" default:"${schedule}" help:"Cron schedule for the poller."`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	var narrator *narrative.Writer
	if c.OpenAIAPIKey != "" {
		if narrator, err = narrative.NewWriter(c.OpenAIAPIKey); err != nil {
			return err
		}
	} else {
		log.Println("OPENAI_API_KEY not set, using plain summaries")
	}

	adv := g.advisor(st)
	ctx, cancel := signalContext()
	defer cancel()

	if c.Locations != "" {
		p, err := newPoller(adv, c.Locations, c.Schedule)
		if err != nil {
			return err
		}
		go func() {
			if err := p.Run(ctx); err != nil {
				log.Printf("poller: %v", err)
			}
		}()
	}

	log.Printf("starting server on :%s", c.Port)
	return api.NewServer(adv, st, narrator, c.Port).Run(ctx)
}

func newPoller(adv *advisor.Advisor, path, schedule string) (*poller.Poller, error) {
	cfg, err := poller.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if cfg.Schedule == "" {
		cfg.Schedule = schedule
	}
	return poller.New(adv, cfg), nil
}

type CheckCmd struct {
	Location      string   `arg:"" optional:"" help:"Place to look up; defaults to New York, NY."`
	Lat           string  `help:"Latitude, used when no location is given."`
	Lon           string  `help:"Longitude, used when no location is given."`
	MinTemp       float64 `default:"${min_temp}" help:"Minimum outdoor temperature (°F)."`
	MaxTemp       float64 `default:"${max_temp}" help:"Maximum outdoor temperature (°F)."`
	MinRH         float64 `name:"min-rh" default:"${min_rh}" help:"Minimum predicted indoor relative humidity (%)."`
	MaxRH         float64 `name:"max-rh" default:"${max_rh}" help:"Maximum predicted indoor relative humidity (%)."`
	IndoorRefTemp float64 `default:"${indoor_ref_temp}" help:"Reference indoor temperature (°F)."`
	MaxAQI        int     `name:"max-aqi" default:"${max_aqi}" help:"Maximum US AQI."`
	MaxPrecipProb float64 `default:"${max_precip_prob}" help:"Maximum precipitation probability (%)."`
}

func (c *CheckCmd) Run(g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	req := advisor.Request{
		Query:  c.Location,
		Source: "cli",
		Thresholds: models.Thresholds{
			MinOutdoorTempF:             c.MinTemp,
			MaxOutdoorTempF:             c.MaxTemp,
			MinIndoorRH:                 c.MinRH,
			MaxIndoorRH:                 c.MaxRH,
			IndoorReferenceTempF:        c.IndoorRefTemp,
			MaxAQI:                      c.MaxAQI,
			MaxPrecipProbabilityPercent: c.MaxPrecipProb,
		},
	}
	if c.Location == "" && (c.Lat != "" || c.Lon != "") {
		lat, latErr := strconv.ParseFloat(c.Lat, 64)
		lon, lonErr := strconv.ParseFloat(c.Lon, 64)
		if latErr != nil || lonErr != nil {
			return fmt.Errorf("--lat and --lon must both be numbers")
		}
		req.Coordinates = &models.Coordinates{Latitude: lat, Longitude: lon}
	}

	ctx, cancel := signalContext()
	defer cancel()
	ev, err := g.advisor(st).Evaluate(ctx, req)
	if err != nil {
		return err
	}

	res := ev.Result
	fmt.Printf("Approximate Location: %s\n", ev.Address)
	fmt.Printf("Timezone: %s", res.Timezone)
	if res.TimezoneFallback {
		fmt.Print(" (fallback)")
	}
	fmt.Println()
	if !res.AQIAvailable {
		fmt.Println("AQI data not available; air quality not considered.")
	}
	fmt.Println()
	for _, day := range ev.VisibleDays {
		fmt.Println(day)
		periods := res.DailyPeriods[day]
		if len(periods) == 0 {
			fmt.Println("  No good times to open windows.")
			continue
		}
		for _, p := range periods {
			fmt.Printf("  %s\n", p)
		}
	}
	fmt.Println()
	fmt.Println(narrative.Summary(ev))
	return nil
}

type PollCmd struct {
	Locations string `required:"" type:"existingfile" env:"OPENWINDOW_LOCATIONS" help:"Watch-location YAML file."`
	Schedule  string `env:"OPENWINDOW_SCHEDULE" default:"${schedule}" help:"Cron schedule, unless the file sets one."`
	Once      bool   `help:"Evaluate every location once and exit."`
}

func (c *PollCmd) Run(g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	p, err := newPoller(g.advisor(st), c.Locations, c.Schedule)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if c.Once {
		return p.RunOnce(ctx)
	}
	return p.Run(ctx)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	st, err := g.requireStore()
	if err != nil {
		return err
	}
	defer st.Close()

	version, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	log.Printf("database at migration version %d", version)
	return nil
}

type HistoryCmd struct {
	Location string `arg:"" optional:"" help:"Only show evaluations for this location."`
	Limit    int    `default:"20" help:"Maximum rows to show."`
}

func (c *HistoryCmd) Run(g *Globals) error {
	st, err := g.requireStore()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.RecentEvaluations(c.Location, c.Limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVALUATED\tSOURCE\tLOCATION\tHOURS\tWINDOWS\tNEXT WINDOW")
	for _, r := range recs {
		next := "-"
		if r.FirstWindowStart.Valid {
			next = r.FirstWindowStart.Time.Format("Mon 03:04 PM")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			r.EvaluatedAt.Format("2006-01-02 15:04"), r.Source, r.LocationName,
			r.AdmissibleHours, r.Hours, r.IntervalCount, next)
	}
	return w.Flush()
}

type StatsCmd struct {
	Days int `default:"7" help:"Days of ingest history to summarise."`
}

func (c *StatsCmd) Run(g *Globals) error {
	st, err := g.requireStore()
	if err != nil {
		return err
	}
	defer st.Close()

	health, err := st.GetIngestHealth(c.Days)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSOURCE\tENDPOINT\tRUNS\tOK\tFAILED\tRECORDS")
	for _, h := range health {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			h.Date, h.Source, h.Endpoint, h.TotalRuns, h.SuccessRuns, h.FailedRuns, h.TotalRecords)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	stats, err := st.GetRawPayloadStats()
	if err != nil {
		return err
	}
	fmt.Printf("\nraw payloads: %d (%d bytes compressed)\n", stats.TotalCount, stats.TotalSizeBytes)
	for source, n := range stats.CountBySource {
		fmt.Printf("  %s: %d (%d bytes)\n", source, n, stats.SizeBySource[source])
	}
	return nil
}

type CleanupCmd struct {
	Days int `default:"30" help:"Delete raw payloads older than this many days."`
}

func (c *CleanupCmd) Run(g *Globals) error {
	st, err := g.requireStore()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.CleanupOldRawPayloads(c.Days)
	if err != nil {
		return err
	}
	log.Printf("deleted %d raw payloads older than %d days", n, c.Days)
	return nil
}
