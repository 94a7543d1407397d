package cli

import (
	"github.com/spf13/cobra"
)

var (
	coursesFrom string
	coursesTo   string
)

func init() {
	courses := &cobra.Command{
		Use:   "courses <user>",
		Short: "List courses starting within a date range (inclusive)",
		Args:  cobra.ExactArgs(1),
		Run:   runCourses,
	}
	courses.Flags().StringVar(&coursesFrom, "from", "", "Range start, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
	courses.Flags().StringVar(&coursesTo, "to", "", "Range end, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
	_ = courses.MarkFlagRequired("from")
	_ = courses.MarkFlagRequired("to")

	subject := &cobra.Command{
		Use:   "subject <user> <subject>",
		Short: "List courses whose title contains a subject, ignoring case and accents",
		Args:  cobra.ExactArgs(2),
		Run:   runSubject,
	}

	free := &cobra.Command{
		Use:   "free <user> <date>",
		Short: "Show free time slots within working hours on one day",
		Args:  cobra.ExactArgs(2),
		Run:   runFree,
	}

	next := &cobra.Command{
		Use:   "next <user>",
		Short: "Show the next upcoming course",
		Args:  cobra.ExactArgs(1),
		Run:   runNext,
	}

	RootCmd.AddCommand(courses, subject, free, next)
}

func runCourses(cmd *cobra.Command, args []string) {
	a := openApp()
	res, err := a.query.CoursesByDateRange(args[0], coursesFrom, coursesTo)
	if err != nil {
		exitErr("courses", err)
	}
	printJSON(res)
}

func runSubject(cmd *cobra.Command, args []string) {
	a := openApp()
	res, err := a.query.CoursesBySubject(args[0], args[1])
	if err != nil {
		exitErr("subject", err)
	}
	printJSON(res)
}

func runFree(cmd *cobra.Command, args []string) {
	a := openApp()
	res, err := a.query.FreeTimeSlots(args[0], args[1])
	if err != nil {
		exitErr("free", err)
	}
	printJSON(res)
}

func runNext(cmd *cobra.Command, args []string) {
	a := openApp()
	res, err := a.query.NextCourse(args[0])
	if err != nil {
		exitErr("next", err)
	}
	printJSON(res)
}
