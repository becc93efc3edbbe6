package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nesttask/nesttask/internal/routine"
)

var slotCmd = &cobra.Command{
	Use:   "slot",
	Short: "Manage weekly class slots within a routine",
}

var slotAddInput routine.SlotInput

var slotAddCmd = &cobra.Command{
	Use:   "add <routine-id>",
	Short: "Add a class slot to a routine (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		s, err := a.eng.AddSlot(ctx, args[0], &slotAddInput)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Added slot %s (%s %s-%s)\n", s.ID, s.DayOfWeek, s.StartTime, s.EndTime)
		if s.Pending.IsPending() {
			fmt.Println("Offline: the slot will sync when connectivity returns.")
		}
	},
}

var (
	slotUpdateDay     string
	slotUpdateStart   string
	slotUpdateEnd     string
	slotUpdateRoom    string
	slotUpdateSection string
	slotUpdateCourse  string
	slotUpdateTeacher string
)

var slotUpdateCmd = &cobra.Command{
	Use:   "update <routine-id> <slot-id>",
	Short: "Update slot fields (works offline)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		u := &routine.SlotUpdate{}
		changed := false
		set := func(flag string, dst **string, val *string) {
			if cmd.Flags().Changed(flag) {
				*dst = val
				changed = true
			}
		}
		set("day", &u.DayOfWeek, &slotUpdateDay)
		set("start", &u.StartTime, &slotUpdateStart)
		set("end", &u.EndTime, &slotUpdateEnd)
		set("room", &u.RoomNumber, &slotUpdateRoom)
		set("section", &u.Section, &slotUpdateSection)
		set("course", &u.CourseID, &slotUpdateCourse)
		set("teacher", &u.TeacherID, &slotUpdateTeacher)
		if !changed {
			fatal("nothing to update: pass at least one field flag")
		}

		if err := a.eng.UpdateSlot(ctx, args[0], args[1], u); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Updated.")
	},
}

var slotDeleteCmd = &cobra.Command{
	Use:   "delete <routine-id> <slot-id>",
	Short: "Delete a slot (works offline)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.eng.DeleteSlot(ctx, args[0], args[1]); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Deleted.")
	},
}

var slotImportCmd = &cobra.Command{
	Use:   "import <routine-id> <slots.json>",
	Short: "Bulk-import slots from a JSON array (online only)",
	Long: `Import a batch of slots from a JSON file holding an array of slot
definitions. Each entry is validated and checked for time overlap against
the routine's existing slots on the same day and section; rejected entries
are reported individually while accepted ones are inserted.

Bulk import writes straight to the backend and requires connectivity.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		data, err := os.ReadFile(args[1])
		if err != nil {
			fatal("%v", err)
		}
		var inputs []routine.SlotInput
		if err := json.Unmarshal(data, &inputs); err != nil {
			fatal("failed to parse %s: %v", args[1], err)
		}

		report, err := a.eng.BulkImportSlots(ctx, args[0], inputs)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Imported %d of %d slots\n", report.Success, len(inputs))
		for _, e := range report.Errors {
			fmt.Printf("  entry %d rejected: %s\n", e.Index, e.Reason)
		}
		if len(report.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	f := slotAddCmd.Flags()
	f.StringVar(&slotAddInput.DayOfWeek, "day", "", "day of week (Sunday..Saturday)")
	f.StringVar(&slotAddInput.StartTime, "start", "", "start time, HH:MM")
	f.StringVar(&slotAddInput.EndTime, "end", "", "end time, HH:MM")
	f.StringVar(&slotAddInput.RoomNumber, "room", "", "room number")
	f.StringVar(&slotAddInput.Section, "section", "", "section")
	f.StringVar(&slotAddInput.CourseID, "course", "", "course id")
	f.StringVar(&slotAddInput.TeacherID, "teacher", "", "teacher id")
	slotAddCmd.MarkFlagRequired("day")
	slotAddCmd.MarkFlagRequired("start")
	slotAddCmd.MarkFlagRequired("end")

	u := slotUpdateCmd.Flags()
	u.StringVar(&slotUpdateDay, "day", "", "day of week")
	u.StringVar(&slotUpdateStart, "start", "", "start time, HH:MM")
	u.StringVar(&slotUpdateEnd, "end", "", "end time, HH:MM")
	u.StringVar(&slotUpdateRoom, "room", "", "room number")
	u.StringVar(&slotUpdateSection, "section", "", "section")
	u.StringVar(&slotUpdateCourse, "course", "", "course id")
	u.StringVar(&slotUpdateTeacher, "teacher", "", "teacher id")

	slotCmd.AddCommand(slotAddCmd)
	slotCmd.AddCommand(slotUpdateCmd)
	slotCmd.AddCommand(slotDeleteCmd)
	slotCmd.AddCommand(slotImportCmd)
	rootCmd.AddCommand(slotCmd)
}
