package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nesttask/nesttask/internal/engine"
	"github.com/nesttask/nesttask/internal/routine"
)

var routineCmd = &cobra.Command{
	Use:   "routine",
	Short: "Manage class routines",
}

var (
	routineListSemester string
	routineListRefresh  bool
)

var routineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routines from the cache, refreshing when stale",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		var routines []*routine.Routine
		if routineListSemester != "" {
			routines, err = a.eng.ListRoutinesBySemester(ctx, routineListSemester)
		} else {
			routines, err = a.eng.Load(ctx, engine.LoadOptions{ForceRefresh: routineListRefresh})
		}
		if err != nil {
			fatal("%v", err)
		}

		if len(routines) == 0 {
			fmt.Println("No routines cached. Run 'nesttask sync' while online.")
			return
		}

		for _, r := range routines {
			marker := " "
			if r.IsActive {
				marker = "*"
			}
			pending := ""
			if r.Pending.IsPending() {
				pending = fmt.Sprintf("  [%s]", r.Pending)
			}
			fmt.Printf("%s %-36s  %-30s  %s  (%d slots)%s\n",
				marker, r.ID, r.Name, r.Semester, len(r.Slots), pending)
		}
	},
}

var routineShowRefresh bool

var routineShowCmd = &cobra.Command{
	Use:   "show <routine-id>",
	Short: "Show a routine and its weekly slots",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		var r *routine.Routine
		if routineShowRefresh {
			r, err = a.eng.GetFresh(ctx, args[0])
		} else {
			if _, err := a.eng.Load(ctx, engine.LoadOptions{}); err != nil {
				fatal("%v", err)
			}
			r, err = a.eng.Get(ctx, args[0])
		}
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Name:     %s\n", r.Name)
		fmt.Printf("Semester: %s\n", r.Semester)
		fmt.Printf("Active:   %v\n", r.IsActive)
		if r.Description != "" {
			fmt.Printf("About:    %s\n", r.Description)
		}
		if r.Pending.IsPending() {
			fmt.Printf("Pending:  %s\n", r.Pending)
		}
		if len(r.Slots) == 0 {
			fmt.Println("\nNo slots.")
			return
		}

		fmt.Println()
		for _, s := range r.Slots {
			if s.Pending == routine.StatePendingDelete {
				continue
			}
			course := s.CourseName
			if course == "" {
				course = s.CourseID
			}
			teacher := s.TeacherName
			if teacher == "" {
				teacher = s.TeacherID
			}
			pending := ""
			if s.Pending.IsPending() {
				pending = fmt.Sprintf("  [%s]", s.Pending)
			}
			fmt.Printf("  %-9s %s-%s  %-24s %-20s room %s  sec %s  (%s)%s\n",
				s.DayOfWeek, s.StartTime, s.EndTime, course, teacher,
				s.RoomNumber, s.Section, s.ID, pending)
		}
	},
}

var (
	routineCreateDesc     string
	routineCreateSemester string
)

var routineCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a routine (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		r, err := a.eng.Create(ctx, &routine.RoutineInput{
			Name:        args[0],
			Description: routineCreateDesc,
			Semester:    routineCreateSemester,
		})
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Created routine %s\n", r.ID)
		if r.Pending.IsPending() {
			fmt.Println("Offline: the routine will sync when connectivity returns.")
		}
	},
}

var (
	routineUpdateName     string
	routineUpdateDesc     string
	routineUpdateSemester string
)

var routineUpdateCmd = &cobra.Command{
	Use:   "update <routine-id>",
	Short: "Update routine fields (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		u := &routine.RoutineUpdate{}
		if cmd.Flags().Changed("name") {
			u.Name = &routineUpdateName
		}
		if cmd.Flags().Changed("description") {
			u.Description = &routineUpdateDesc
		}
		if cmd.Flags().Changed("semester") {
			u.Semester = &routineUpdateSemester
		}
		if u.Name == nil && u.Description == nil && u.Semester == nil {
			fatal("nothing to update: pass --name, --description or --semester")
		}

		if err := a.eng.Update(ctx, args[0], u); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Updated.")
	},
}

var routineDeleteCmd = &cobra.Command{
	Use:   "delete <routine-id>",
	Short: "Delete a routine and its slots (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.eng.Delete(ctx, args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Deleted.")
	},
}

var routineActivateCmd = &cobra.Command{
	Use:   "activate <routine-id>",
	Short: "Make a routine the single active one (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.eng.Activate(ctx, args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Activated.")
	},
}

var routineDeactivateCmd = &cobra.Command{
	Use:   "deactivate <routine-id>",
	Short: "Deactivate a routine (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.eng.Deactivate(ctx, args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Deactivated.")
	},
}

var semestersCmd = &cobra.Command{
	Use:   "semesters",
	Short: "List the distinct semesters across cached routines",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		semesters, err := a.eng.ListSemesters(ctx)
		if err != nil {
			fatal("%v", err)
		}
		if len(semesters) == 0 {
			fmt.Println("No semesters.")
			return
		}
		fmt.Println(strings.Join(semesters, "\n"))
	},
}

func init() {
	routineListCmd.Flags().StringVar(&routineListSemester, "semester", "", "filter by semester")
	routineListCmd.Flags().BoolVar(&routineListRefresh, "refresh", false, "force a remote refresh")

	routineShowCmd.Flags().BoolVar(&routineShowRefresh, "refresh", false, "fetch the routine directly from the remote")

	routineCreateCmd.Flags().StringVar(&routineCreateDesc, "description", "", "routine description")
	routineCreateCmd.Flags().StringVar(&routineCreateSemester, "semester", "", "semester label")

	routineUpdateCmd.Flags().StringVar(&routineUpdateName, "name", "", "new name")
	routineUpdateCmd.Flags().StringVar(&routineUpdateDesc, "description", "", "new description")
	routineUpdateCmd.Flags().StringVar(&routineUpdateSemester, "semester", "", "new semester")

	routineCmd.AddCommand(routineListCmd)
	routineCmd.AddCommand(routineShowCmd)
	routineCmd.AddCommand(routineCreateCmd)
	routineCmd.AddCommand(routineUpdateCmd)
	routineCmd.AddCommand(routineDeleteCmd)
	routineCmd.AddCommand(routineActivateCmd)
	routineCmd.AddCommand(routineDeactivateCmd)
	rootCmd.AddCommand(routineCmd)
	rootCmd.AddCommand(semestersCmd)
}
