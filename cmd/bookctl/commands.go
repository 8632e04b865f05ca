package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"booking/internal/form"
	"booking/internal/models"
	"booking/internal/validation"
)

func newResourcesCmd(opts *options) *cobra.Command {
	var (
		filter models.ResourceFilter
		typ    string
		page   models.PageRequest
		sortBy string
	)

	cmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"res"},
		Short:   "List or search resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			if typ != "" {
				t, err := models.ParseResourceType(typ)
				if err != nil {
					return err
				}
				filter.Type = t
			}
			if sortBy != "" {
				field, desc, _ := strings.Cut(sortBy, ",")
				page.SortField = field
				page.SortDesc = desc == "desc"
			}

			resources, err := opts.client().SearchResources(cmd.Context(), filter, page)
			if err != nil {
				return err
			}
			writeResources(cmd.OutOrStdout(), resources)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Title, "title", "", "title contains")
	f.StringVar(&filter.Author, "author", "", "author contains")
	f.StringVar(&filter.Keywords, "keywords", "", "keywords contain")
	f.StringVar(&typ, "type", "", "BOOK, MEETING_ROOM or EQUIPMENT")
	f.IntVar(&page.Page, "page", 0, "zero-based page")
	f.IntVar(&page.Size, "size", models.DefaultPageSize, "page size")
	f.StringVar(&sortBy, "sort", "", "sort field, e.g. title,desc")
	return cmd
}

func newReservationsCmd(opts *options) *cobra.Command {
	var (
		resourceID int64
		activeFor  int64
		page       models.PageRequest
	)

	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			var (
				reservations []models.Reservation
				err          error
			)
			switch {
			case resourceID != 0:
				reservations, err = c.ReservationsByResource(cmd.Context(), resourceID)
			case activeFor != 0:
				reservations, err = c.ActiveReservations(cmd.Context(), activeFor)
			default:
				reservations, err = c.Reservations().FetchAll(cmd.Context(), page)
			}
			if err != nil {
				return err
			}
			writeReservations(cmd.OutOrStdout(), reservations)
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&resourceID, "resource", 0, "only reservations of this resource")
	f.Int64Var(&activeFor, "active-for", 0, "only active reservations of this user")
	f.IntVar(&page.Page, "page", 0, "zero-based page")
	f.IntVar(&page.Size, "size", models.DefaultPageSize, "page size")

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Delete a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid reservation id %q", args[0])
			}
			if err := opts.client().Reservations().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reservation %d cancelled\n", id)
			return nil
		},
	})
	return cmd
}

func newReserveCmd(opts *options) *cobra.Command {
	var fields form.Fields

	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Book a resource",
		Example: "  bookctl reserve --resource 3 --date 2024-06-11 --start 10:00 --end 12:00",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := form.New(opts.client().Reservations(), opts.account(), form.WithLogger(opts.logger()))
			defer f.Close()

			created, err := f.Submit(cmd.Context(), fields)
			var invalid validation.Errors
			if errors.As(err, &invalid) {
				keys := make([]string, 0, len(invalid))
				for field := range invalid {
					keys = append(keys, field)
				}
				sort.Strings(keys)
				for _, field := range keys {
					printErr(cmd, "%s: %s", field, invalid[field])
				}
				return errors.New("reservation form is invalid")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Reservation %s created (id %d) for %s, %s-%s\n",
				created.ReservationID, created.ID, created.Resource.Title,
				created.StartTime.Local().Format("2006-01-02 15:04"), created.EndTime.Local().Format("15:04"))
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&fields.ResourceID, "resource", 0, "resource id")
	f.StringVar(&fields.Date, "date", "", "reservation date, YYYY-MM-DD")
	f.StringVar(&fields.StartTime, "start", "", "start time, HH:MM")
	f.StringVar(&fields.EndTime, "end", "", "end time, HH:MM")
	return cmd
}

func newAvailabilityCmd(opts *options) *cobra.Command {
	var (
		resourceID int64
		date       string
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Check whether a resource is free for a time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := validation.Combine(date, start, time.Local)
			if err != nil {
				return err
			}
			to, err := validation.Combine(date, end, time.Local)
			if err != nil {
				return err
			}
			free, err := opts.client().Availability(cmd.Context(), resourceID, from, to)
			if err != nil {
				return err
			}
			if free {
				fmt.Fprintln(cmd.OutOrStdout(), "available")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "booked")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&resourceID, "resource", 0, "resource id")
	f.StringVar(&date, "date", time.Now().Format("2006-01-02"), "date, YYYY-MM-DD")
	f.StringVar(&start, "start", "", "start time, HH:MM")
	f.StringVar(&end, "end", "", "end time, HH:MM")
	cmd.MarkFlagRequired("resource")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newCalendarCmd(opts *options) *cobra.Command {
	var (
		date string
		view string
	)

	cmd := &cobra.Command{
		Use:   "calendar <resource-id>",
		Short: "Show the day or week calendar of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid resource id %q", args[0])
			}
			day, err := time.ParseInLocation("2006-01-02", date, time.Local)
			if err != nil {
				return fmt.Errorf("invalid date %q", date)
			}
			cal, err := opts.client().Calendar(cmd.Context(), id, day, view)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range cal.Days {
				fmt.Fprintf(out, "%s %s\n", d.Weekday, d.Date)
				for _, slot := range d.Slots {
					for _, ev := range slot.Events {
						fmt.Fprintf(out, "  %s  %s-%s  %s (%s)\n", slot.Time,
							ev.Start.Local().Format("15:04"), ev.End.Local().Format("15:04"), ev.Title, ev.User)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", time.Now().Format("2006-01-02"), "any day of the period, YYYY-MM-DD")
	cmd.Flags().StringVar(&view, "view", "week", "week or day")
	return cmd
}

func newTimesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "times",
		Short: "Print the selectable reservation times",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(validation.TimeOptions(), " "))
		},
	}
}

func writeResources(w io.Writer, resources []models.Resource) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tAUTHOR\tKEYWORDS")
	for _, r := range resources {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.ResourceType.Label(), r.Author, r.Keywords)
	}
	tw.Flush()
}

func writeReservations(w io.Writer, reservations []models.Reservation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRESERVATION\tRESOURCE\tUSER\tSTART\tEND")
	for _, r := range reservations {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.ReservationID, r.Resource.Title, r.User.Login,
			r.StartTime.Local().Format("2006-01-02 15:04"), r.EndTime.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
