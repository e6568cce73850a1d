package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/database/postgres"
	"github.com/kozaktomas/punch-clock/internal/geo"
	"github.com/spf13/cobra"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Show which work locations accept a coordinate",
	Long: `Compute the distance from a coordinate to every active work location and
report whether the point lies within each location's radius. With --name only
the named location is shown; the name match ignores case and accents.`,
	RunE: runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)
	locateCmd.Flags().Float64("lat", 0, "Latitude in decimal degrees")
	locateCmd.Flags().Float64("lng", 0, "Longitude in decimal degrees")
	locateCmd.Flags().String("name", "", "Only show this location")
	locateCmd.Flags().Bool("json", false, "Output as JSON")
	locateCmd.MarkFlagRequired("lat")
	locateCmd.MarkFlagRequired("lng")
}

func runLocate(cmd *cobra.Command, args []string) error {
	point := geo.Point{Lat: mustGetFloat64(cmd, "lat"), Lng: mustGetFloat64(cmd, "lng")}
	name := mustGetString(cmd, "name")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	ctx := context.Background()
	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	policy, err := store.GeofencingPolicy(ctx)
	if err != nil {
		return err
	}
	locations, err := store.ActiveWorkLocations(ctx)
	if err != nil {
		return err
	}
	if name != "" {
		loc := geo.FindByName(name, locations)
		if loc == nil {
			return fmt.Errorf("no active location named %q", name)
		}
		locations = []database.WorkLocation{*loc}
	}

	distances := geo.Distances(point, locations, policy.DefaultRadiusMeters)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"geofencing_enabled": policy.Enabled,
			"distances":          distances,
		})
	}

	if !policy.Enabled {
		fmt.Println("Geofencing is disabled: punches are accepted from anywhere")
	}
	if len(distances) == 0 {
		fmt.Println("No active locations with coordinates")
		return nil
	}
	for _, d := range distances {
		mark := " "
		if d.Inside {
			mark = "*"
		}
		fmt.Printf("%s %-30s %10.1f m  (radius %.0f m)\n", mark, d.Location.Name, d.Meters, d.Radius)
	}
	return nil
}
