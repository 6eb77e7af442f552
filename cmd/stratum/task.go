package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/cuemby/stratum/pkg/types"
	"github.com/spf13/cobra"
)

var taskClientAddr string

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and manage tasks on a running stratum instance",
}

var taskListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List tasks, most recent first",
	RunE:  runTaskList,
}

var taskGetCmd = &cobra.Command{
	Use:   "get <uid>",
	Short: "Show one task by uid",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskGet,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Register a task-cancellation request matching the given filters",
	RunE:  runTaskMutate("/tasks/cancel"),
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Register a task-deletion request matching the given filters",
	RunE:  runTaskMutate("/tasks/delete"),
}

var taskFilter struct {
	uids     string
	statuses string
	kinds    string
	indexes  string
	limit    int
}

func init() {
	taskCmd.PersistentFlags().StringVar(&taskClientAddr, "addr", "localhost:7700", "address of a running stratum serve instance")

	for _, c := range []*cobra.Command{taskListCmd, taskCancelCmd, taskDeleteCmd} {
		c.Flags().StringVar(&taskFilter.uids, "uids", "", "comma-separated task uids")
		c.Flags().StringVar(&taskFilter.statuses, "statuses", "", "comma-separated statuses (enqueued,processing,succeeded,failed,canceled)")
		c.Flags().StringVar(&taskFilter.kinds, "types", "", "comma-separated task kinds")
		c.Flags().StringVar(&taskFilter.indexes, "index-uids", "", "comma-separated index uids")
	}
	taskListCmd.Flags().IntVar(&taskFilter.limit, "limit", 20, "maximum number of results")

	taskCmd.AddCommand(taskListCmd, taskGetCmd, taskCancelCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd, statsCmd)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	c := newAPIClient(taskClientAddr)
	q := make(url.Values)
	setIfNonEmpty(q, "uids", taskFilter.uids)
	setIfNonEmpty(q, "statuses", taskFilter.statuses)
	setIfNonEmpty(q, "types", taskFilter.kinds)
	setIfNonEmpty(q, "indexUids", taskFilter.indexes)
	q.Set("limit", strconv.Itoa(taskFilter.limit))
	q.Set("reverse", "true")

	var resp struct {
		Results []types.View `json:"results"`
		Total   int          `json:"total"`
	}
	if err := c.do("GET", "/tasks", q, nil, &resp); err != nil {
		return err
	}
	printTaskTable(resp.Results)
	fmt.Printf("%d of %d tasks\n", len(resp.Results), resp.Total)
	return nil
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	c := newAPIClient(taskClientAddr)
	var view types.View
	if err := c.do("GET", "/tasks/"+args[0], nil, nil, &view); err != nil {
		return err
	}
	printTaskTable([]types.View{view})
	return nil
}

// runTaskMutate returns a RunE that posts the shared filter flags to path
// (/tasks/cancel or /tasks/delete) and reports the task registered to carry
// out the request, mirroring the teacher apply command's "print what was
// created" feedback.
func runTaskMutate(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(taskClientAddr)
		q := make(url.Values)
		setIfNonEmpty(q, "uids", taskFilter.uids)
		setIfNonEmpty(q, "statuses", taskFilter.statuses)
		setIfNonEmpty(q, "types", taskFilter.kinds)
		setIfNonEmpty(q, "indexUids", taskFilter.indexes)

		var resp types.RegisterResponse
		if err := c.do("POST", path, q, nil, &resp); err != nil {
			return err
		}
		fmt.Printf("registered task %d (%s) to carry out the request\n", resp.TaskUID, resp.Status)
		return nil
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue occupancy for a running stratum instance",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&taskClientAddr, "addr", "localhost:7700", "address of a running stratum serve instance")
}

func runStats(cmd *cobra.Command, args []string) error {
	c := newAPIClient(taskClientAddr)
	var resp struct {
		TasksByStatus map[types.Status]int `json:"tasksByStatus"`
		QueueUsed     float64              `json:"queueUsedFraction"`
	}
	if err := c.do("GET", "/stats", nil, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("queue used: %.1f%%\n", resp.QueueUsed*100)
	for status, n := range resp.TasksByStatus {
		fmt.Printf("  %-12s %d\n", status, n)
	}
	return nil
}

func setIfNonEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func printTaskTable(views []types.View) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tSTATUS\tTYPE\tINDEX\tENQUEUED AT")
	for _, v := range views {
		index := ""
		if v.IndexUID != nil {
			index = *v.IndexUID
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.UID, v.Status, v.Kind, index, v.EnqueuedAt.Format("2006-01-02T15:04:05Z"))
	}
	tw.Flush()
}
