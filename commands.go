package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tsquare/auth"
	"tsquare/grades"
	"tsquare/portal"
	"tsquare/session"
)

const dateLayout = "Mon Jan 2 3:04 PM"

func when(t time.Time, raw string) string {
	if t.IsZero() {
		return raw
	}
	return t.Local().Format(dateLayout)
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || n < 1 {
		return 0, errors.Errorf("invalid index %q", s)
	}
	return n, nil
}

func parseWeight(s string) (float64, error) {
	w, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, errors.Wrapf(grades.ErrInvalidWeight, "%q", s)
	}
	return w, nil
}

func shortNames(classes []portal.Class) map[string]string {
	names := make(map[string]string, len(classes))
	for _, c := range classes {
		names[c.ID] = c.String()
	}
	return names
}

func printAttachments(out io.Writer, title string, list []portal.Attachment) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, at := range list {
		fmt.Fprintf(out, "  %-30s %s\n", at.Name, at.Link)
	}
}

func loginCmd(o *options) *cobra.Command {
	var noSave bool
	cmd := &cobra.Command{
		Use:   "login [USERNAME]",
		Short: "Log in and remember the credentials",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		username := a.username()
		if len(args) == 1 {
			username = args[0]
		}
		prompt := session.PromptSource{In: os.Stdin, Out: cmd.ErrOrStderr(), Username: username}
		creds, ok, err := prompt.Credentials(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no terminal to read the password from")
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Logging in, approve the two-factor prompt if one appears...")
		res, err := a.login(ctx, creds, !noSave)
		if err != nil {
			return err
		}
		if res.State == auth.TimedOut {
			fmt.Fprintln(cmd.OutOrStdout(), "The two-factor prompt did not show up in time.")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", creds.Username)
		return nil
	})
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Keep the credentials for this command only")
	return cmd
}

func logoutCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and saved credentials",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		if err := a.logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	})
	return cmd
}

func classesCmd(o *options) *cobra.Command {
	var all, refresh bool
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List classes",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		out := cmd.OutOrStdout()
		if all {
			classes, _, err := a.scraper.AllClasses(ctx)
			if err != nil {
				return err
			}
			for _, c := range classes {
				state := "shown"
				if !c.Active {
					state = "hidden"
				}
				fmt.Fprintf(out, "%-14s %-18s %-7s %s\n", c.ID, c.String(), state, c.Subject.Name)
			}
			return nil
		}

		classes, err := a.classes(ctx, refresh)
		if err != nil {
			return err
		}
		frequent, err := portal.NewRanking(a.ov).Frequent(classes, 3)
		if err != nil {
			log.WithError(err).Debug("reading open counts")
		}
		if len(frequent) > 0 {
			var names []string
			for _, c := range frequent {
				names = append(names, c.String())
			}
			fmt.Fprintf(out, "Frequent: %s\n\n", strings.Join(names, ", "))
		}
		for _, c := range classes {
			fmt.Fprintf(out, "%-14s %-18s %s\n", c.ID, c.String(), c.Subject.Name)
		}
		return nil
	})
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include hidden classes")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Ignore the cached class list")
	return cmd
}

func toggleCmd(o *options) *cobra.Command {
	var show, hide bool
	cmd := &cobra.Command{
		Use:   "toggle CLASS...",
		Short: "Show or hide classes in the portal",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		if show && hide {
			return errors.New("--show and --hide are exclusive")
		}
		targets, prefs, err := a.findAnyClasses(ctx, args)
		if err != nil {
			return err
		}

		q := portal.NewToggleQueue(ctx, func(ctx context.Context, c portal.Class, active bool) error {
			return a.scraper.SetActive(ctx, prefs, c, active)
		})
		defer q.Close()
		wanted := make([]bool, len(targets))
		results := make([]<-chan error, len(targets))
		for i, c := range targets {
			wanted[i] = !c.Active
			if show || hide {
				wanted[i] = show
			}
			results[i] = q.Submit(c, wanted[i])
		}

		var failed error
		for i, r := range results {
			if err := <-r; err != nil {
				log.WithError(err).WithField("class", targets[i].ID).Warn("toggle failed")
				failed = err
				continue
			}
			state := "hidden"
			if wanted[i] {
				state = "shown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", targets[i], state)
		}
		if _, err := a.classes(ctx, true); err != nil {
			log.WithError(err).Debug("refreshing class list")
		}
		return failed
	})
	cmd.Flags().BoolVar(&show, "show", false, "Show the classes")
	cmd.Flags().BoolVar(&hide, "hide", false, "Hide the classes")
	return cmd
}

func (a *app) loader() *portal.Loader {
	return portal.NewLoader(a.scraper, a.cfg.Workers, a.cfg.Limit, log.StandardLogger())
}

func (a *app) opened(c portal.Class) {
	if err := portal.NewRanking(a.ov).Open(c); err != nil {
		log.WithError(err).Debug("counting class open")
	}
}

func announcementsCmd(o *options) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "announcements [CLASS]",
		Short: "List announcements, newest first",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		classes, err := a.selectClasses(ctx, ref)
		if err != nil {
			return err
		}
		if ref != "" {
			a.opened(classes[0])
		}
		tracker, err := portal.NewReadTracker(a.ov)
		if err != nil {
			return err
		}
		list, err := a.loader().Announcements(ctx, classes, func(so []portal.Announcement) {
			log.WithField("count", len(so)).Debug("announcements so far")
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		names := shortNames(classes)
		index := make(map[string]int)
		for _, an := range list {
			index[an.ClassID]++
			read := tracker.IsRead(an)
			if unread && read {
				continue
			}
			mark := " "
			if !read {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-12s #%-3d %-20s %s (%s)\n", mark, names[an.ClassID], index[an.ClassID], when(an.Date, an.RawDate), an.Name, an.Author)
		}
		return nil
	})
	cmd.Flags().BoolVarP(&unread, "unread", "u", false, "Only unread announcements")
	return cmd
}

func announcementCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "announcement CLASS INDEX",
		Short: "Show an announcement and mark it read",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		c, err := a.findClass(ctx, args[0])
		if err != nil {
			return err
		}
		n, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		list, err := a.loader().Announcements(ctx, []portal.Class{c}, nil)
		if err != nil {
			return err
		}
		if n > len(list) {
			return errors.Errorf("%s has %d announcements", c, len(list))
		}
		an := list[n-1]
		if err := a.scraper.LoadAnnouncement(ctx, &an); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n%s, %s\n\n%s\n", an.Name, an.Author, when(an.Date, an.RawDate), an.Body)
		printAttachments(out, "Attachments", an.Attachments)

		tracker, err := portal.NewReadTracker(a.ov)
		if err != nil {
			return err
		}
		return tracker.MarkRead(an)
	})
	return cmd
}

func assignmentsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignments [CLASS]",
		Short: "List assignments, soonest due first",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		classes, err := a.selectClasses(ctx, ref)
		if err != nil {
			return err
		}
		if ref != "" {
			a.opened(classes[0])
		}
		list, err := a.loader().Assignments(ctx, classes, nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		names := shortNames(classes)
		index := make(map[string]int)
		for _, as := range list {
			index[as.ClassID]++
			mark := " "
			if as.Completed {
				mark = "x"
			}
			fmt.Fprintf(out, "[%s] %-12s #%-3d %-20s %s (%s)\n", mark, names[as.ClassID], index[as.ClassID], when(as.Due, as.RawDue), as.Name, as.Status)
		}
		return nil
	})
	return cmd
}

func assignmentCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignment CLASS INDEX",
		Short: "Show an assignment with its submissions and feedback",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		c, err := a.findClass(ctx, args[0])
		if err != nil {
			return err
		}
		n, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		list, err := a.loader().Assignments(ctx, []portal.Class{c}, nil)
		if err != nil {
			return err
		}
		if n > len(list) {
			return errors.Errorf("%s has %d assignments", c, len(list))
		}
		as := list[n-1]
		if err := a.scraper.LoadAssignment(ctx, &as); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\nDue %s, %s\n\n%s\n", as.Name, when(as.Due, as.RawDue), as.Status, as.Message)
		printAttachments(out, "Attachments", as.Attachments)
		printAttachments(out, "Submitted", as.Submissions)
		if as.Feedback != "" {
			fmt.Fprintf(out, "\nFeedback:\n%s\n", as.Feedback)
		}
		return nil
	})
	return cmd
}

func resourcesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources CLASS [FOLDER...]",
		Short: "Browse a class's resources",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		c, err := a.findClass(ctx, args[0])
		if err != nil {
			return err
		}
		a.opened(c)
		out := cmd.OutOrStdout()
		dir, err := a.scraper.Resources(ctx, c)
		if err != nil {
			return err
		}
		if dir == nil {
			fmt.Fprintf(out, "%s has no resources\n", c)
			return nil
		}
		for _, name := range args[1:] {
			next := dir.Find(name)
			if next == nil {
				return errors.Errorf("no %q in %s", name, dir.Name)
			}
			if !next.IsFolder {
				fmt.Fprintln(out, next.Link)
				return nil
			}
			if err := a.scraper.LoadFolder(ctx, next); err != nil {
				return err
			}
			dir = next
		}
		if len(dir.Children) == 0 {
			fmt.Fprintln(out, grades.Placeholder)
		}
		for _, r := range dir.Children {
			if r.IsFolder {
				fmt.Fprintf(out, "%s/\n", r.Name)
				continue
			}
			fmt.Fprintf(out, "%-30s %s\n", r.Name, r.Link)
		}
		return nil
	})
	return cmd
}

func printBook(out io.Writer, b *grades.Book) {
	root := b.Root()
	for _, e := range root.Flatten() {
		fmt.Fprintln(out, entryLine(e))
	}
	mode := ""
	if root.CountDropped() {
		mode = " (counting dropped grades)"
	}
	fmt.Fprintf(out, "Total: %s%s\n", root.ScoreString(), mode)
}

func gradesCmd(o *options) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "grades [CLASS]",
		Short: "Show a class's grades with your changes applied",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		if !interactive {
			if ref == "" {
				return errors.New("name a class or use --interactive")
			}
			c, err := a.findClass(ctx, ref)
			if err != nil {
				return err
			}
			a.opened(c)
			b, err := a.book(ctx, c)
			if err != nil {
				return err
			}
			printBook(cmd.OutOrStdout(), b)
			return nil
		}

		classes, err := a.selectClasses(ctx, ref)
		if err != nil {
			return err
		}
		var tabs []gradeTab
		for _, c := range classes {
			b, err := a.book(ctx, c)
			if err != nil {
				return err
			}
			tabs = append(tabs, newGradeTab(c, b))
		}
		if len(tabs) == 0 {
			return errors.New("no classes")
		}
		return tui(ctx, tabs, a.scraper.Gradebook)
	})
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse and edit grades")
	return cmd
}

// findNode finds a grade or category by name, within group when it is set.
func findNode(root *grades.Group, name, group string) (grades.Scored, error) {
	var found grades.Scored
	root.Walk(func(s grades.Scored) {
		if found != nil || s == grades.Scored(root) || !strings.EqualFold(s.Name(), name) {
			return
		}
		if group != "" && (s.Owner() == nil || !strings.EqualFold(s.Owner().Name(), group)) {
			return
		}
		found = s
	})
	if found == nil {
		return nil, errors.Errorf("no grade or category %q", name)
	}
	return found, nil
}

func findGrade(root *grades.Group, name, group string) (*grades.Grade, error) {
	s, err := findNode(root, name, group)
	if err != nil {
		return nil, err
	}
	g, ok := s.(*grades.Grade)
	if !ok {
		return nil, errors.Errorf("%q is a category", name)
	}
	return g, nil
}

// bookCmd runs fn on a class's book and prints the result.
func (o *options) bookCmd(use, short string, args cobra.PositionalArgs, fn func(b *grades.Book, args []string) error) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short, Args: args}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		c, err := a.findClass(ctx, args[0])
		if err != nil {
			return err
		}
		b, err := a.book(ctx, c)
		if err != nil {
			return err
		}
		if err := fn(b, args[1:]); err != nil {
			return err
		}
		printBook(cmd.OutOrStdout(), b)
		return nil
	})
	return cmd
}

func gradeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Change grades, categories and drops",
	}

	var group, comment string
	add := o.bookCmd("add CLASS NAME SCORE", "Add a custom grade", cobra.ExactArgs(3), func(b *grades.Book, args []string) error {
		var owner *grades.Group
		if group != "" {
			if owner = b.Root().FindGroup(group); owner == nil {
				return errors.Errorf("no category %q", group)
			}
		}
		_, err := b.AddGrade(owner, args[0], args[1], comment)
		return err
	})
	add.Flags().StringVarP(&group, "group", "g", "", "Category to add the grade to")
	add.Flags().StringVar(&comment, "comment", "", "Comment")

	var editGroup, rename, editComment string
	edit := o.bookCmd("edit CLASS NAME SCORE", "Change a custom grade", cobra.ExactArgs(3), func(b *grades.Book, args []string) error {
		g, err := findGrade(b.Root(), args[0], editGroup)
		if err != nil {
			return err
		}
		name := g.Name()
		if rename != "" {
			name = rename
		}
		c := g.Comment()
		if editComment != "" {
			c = editComment
		}
		return b.EditGrade(g, name, args[1], c)
	})
	edit.Flags().StringVarP(&editGroup, "group", "g", "", "Category of the grade")
	edit.Flags().StringVar(&rename, "name", "", "New name")
	edit.Flags().StringVar(&editComment, "comment", "", "New comment")

	addGroup := o.bookCmd("group CLASS NAME WEIGHT", "Add a custom category", cobra.ExactArgs(3), func(b *grades.Book, args []string) error {
		w, err := parseWeight(args[1])
		if err != nil {
			return err
		}
		_, err = b.AddGroup(args[0], w)
		return err
	})

	var removeGroup string
	remove := o.bookCmd("remove CLASS NAME", "Remove a custom grade or category", cobra.ExactArgs(2), func(b *grades.Book, args []string) error {
		s, err := findNode(b.Root(), args[0], removeGroup)
		if err != nil {
			return err
		}
		return b.Remove(s)
	})
	remove.Flags().StringVarP(&removeGroup, "group", "g", "", "Category of the grade")

	var dropGroup string
	drop := o.bookCmd("drop CLASS NAME", "Drop a grade from the average", cobra.ExactArgs(2), func(b *grades.Book, args []string) error {
		g, err := findGrade(b.Root(), args[0], dropGroup)
		if err != nil {
			return err
		}
		return b.Drop(g)
	})
	drop.Flags().StringVarP(&dropGroup, "group", "g", "", "Category of the grade")

	var pickupGroup string
	pickup := o.bookCmd("pickup CLASS NAME", "Count a dropped grade again", cobra.ExactArgs(2), func(b *grades.Book, args []string) error {
		g, err := findGrade(b.Root(), args[0], pickupGroup)
		if err != nil {
			return err
		}
		return b.PickUp(g)
	})
	pickup.Flags().StringVarP(&pickupGroup, "group", "g", "", "Category of the grade")

	weight := o.bookCmd("weight CLASS CATEGORY WEIGHT", "Override a category's weight", cobra.ExactArgs(3), func(b *grades.Book, args []string) error {
		g := b.Root().FindGroup(args[0])
		if g == nil || g == b.Root() {
			return errors.Errorf("no category %q", args[0])
		}
		w, err := parseWeight(args[1])
		if err != nil {
			return err
		}
		return b.SetWeight(g, w)
	})

	countDropped := o.bookCmd("count-dropped CLASS on|off", "Count dropped grades in the average", cobra.ExactArgs(2), func(b *grades.Book, args []string) error {
		switch strings.ToLower(args[0]) {
		case "on", "true", "yes":
			return b.SetCountDropped(true)
		case "off", "false", "no":
			return b.SetCountDropped(false)
		}
		return errors.Errorf("want on or off, got %q", args[0])
	})

	cmd.AddCommand(add, edit, addGroup, remove, drop, pickup, weight, countDropped)
	return cmd
}

func subjectCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject CODE NAME...",
		Short: "Name a subject code the built-in table does not know",
		Args:  cobra.MinimumNArgs(2),
	}
	cmd.RunE = o.run(func(ctx context.Context, a *app, args []string) error {
		code := strings.ToUpper(args[0])
		name := strings.Join(args[1:], " ")
		if err := a.ov.SetSubjectName(code, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", code, name)
		return nil
	})
	return cmd
}
