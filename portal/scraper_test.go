package portal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"tsquare/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	posts []url.Values
	urls  []string

	// hold blocks fetches of that URL: held receives when one starts and
	// release lets it finish.
	hold    string
	held    chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.hold != "" && rawURL == f.hold {
		f.held <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	page, ok := f.pages[rawURL]
	if !ok {
		return "", errors.Errorf("no page %s", rawURL)
	}
	return page, nil
}

func (f *fakeFetcher) Post(ctx context.Context, rawURL string, form url.Values) (string, error) {
	f.mu.Lock()
	f.posts = append(f.posts, form)
	f.mu.Unlock()
	return f.Fetch(ctx, rawURL)
}

const classLink = "https://t-square.gatech.edu/portal/pda/gtc-1332-a"

func newScraper(pages map[string]string) (*Scraper, *fakeFetcher) {
	f := &fakeFetcher{pages: pages}
	logger, _ := test.NewNullLogger()
	return NewScraper(f, Options{Location: eastern}, nil, logger), f
}

func cs1332() Class {
	return NewClass("CS-1332-A", classLink, true, nil)
}

func TestScraperSections(t *testing.T) {
	s, _ := newScraper(map[string]string{
		classLink: `<a href="/portal/pda/gtc-1332-a/tool/ann/">Announcements</a>
<a href="/portal/pda/gtc-1332-a/tool/gb">Markbook</a>`,
		classLink + "/tool/ann/": announcementsPage,
		classLink + "/tool/gb":   gradebookPage,
	})
	ctx := context.Background()

	anns, err := s.Announcements(ctx, cs1332())
	if err != nil || len(anns) != 2 || anns[0].Name != "Exam 1 moved" {
		t.Fatalf("Announcements = %+v, %v", anns, err)
	}
	// No assignments tool is an empty result, not an error.
	as, err := s.Assignments(ctx, cs1332())
	if err != nil || len(as) != 0 {
		t.Errorf("Assignments = %+v, %v", as, err)
	}
	res, err := s.Resources(ctx, cs1332())
	if err != nil || res != nil {
		t.Errorf("Resources = %+v, %v", res, err)
	}
	root, err := s.Gradebook(ctx, cs1332())
	if err != nil || len(root.Groups()) != 3 {
		t.Errorf("Gradebook groups = %d, %v", len(root.Groups()), err)
	}
}

func TestScraperFetchError(t *testing.T) {
	s, _ := newScraper(map[string]string{})
	if _, err := s.Announcements(context.Background(), cs1332()); err == nil {
		t.Error("fetch error swallowed")
	}
}

func TestScraperClasses(t *testing.T) {
	s, _ := newScraper(map[string]string{
		"https://t-square.gatech.edu/portal/pda/": rootPage,
	})
	classes, err := s.Classes(context.Background())
	if err != nil || len(classes) != 4 {
		t.Errorf("Classes = %d, %v", len(classes), err)
	}
}

func TestScraperLoadFolder(t *testing.T) {
	postURL := "https://t-square.gatech.edu/portal/pda/gtc-1332-a/tool/res-1?panel=Main"
	s, f := newScraper(map[string]string{
		classLink:                 `<a href="/portal/pda/gtc-1332-a/tool/res-1">Resources</a>`,
		classLink + "/tool/res-1": folderPage,
		postURL:                   `<table><tr><td><a href="/access/content/group/gtc-1332-a/Lectures/01.pdf">01.pdf</a></td></tr></table>`,
	})
	ctx := context.Background()
	root, err := s.Resources(ctx, cs1332())
	if err != nil {
		t.Fatal(err)
	}
	lectures := root.Find("lectures")
	if lectures == nil || lectures.Loaded {
		t.Fatalf("Lectures = %+v", lectures)
	}
	if err := s.LoadFolder(ctx, lectures); err != nil {
		t.Fatal(err)
	}
	if len(lectures.Children) != 1 || lectures.Children[0].Name != "01.pdf" {
		t.Errorf("children = %+v", lectures.Children)
	}
	want := url.Values{
		"collectionId":   {"/group/gtc-1332-a/Lectures/"},
		"navRoot":        {"/group/gtc-1332-a/"},
		"sakai_action":   {"doNavigate"},
		"criteria":       {"title"},
		"rt_action":      {""},
		"selectedItemId": {""},
	}
	if diff := cmp.Diff(want, f.posts[0]); diff != "" {
		t.Errorf("folder post (-want +got):\n%s", diff)
	}
	// Loaded folders are not fetched again.
	s.LoadFolder(ctx, lectures)
	if len(f.posts) != 1 {
		t.Errorf("posts = %d", len(f.posts))
	}
	if err := s.LoadFolder(ctx, lectures.Children[0]); err == nil {
		t.Error("loaded a file as a folder")
	}
}

func TestScraperSetActive(t *testing.T) {
	prefs := "https://t-square.gatech.edu/portal/pda/~gburdell3/tool/prefs"
	s, f := newScraper(map[string]string{prefs: "<p>Log Out</p>"})
	if err := s.SetActive(context.Background(), prefs, cs1332(), false); err != nil {
		t.Fatal(err)
	}
	want := url.Values{
		"prefs_form_SUBMIT":     {"1"},
		"prefs_form:_idcl":      {"prefs_form:_id35"},
		"prefs_form:_id35:site": {"gtc-1332-a"},
	}
	if diff := cmp.Diff(want, f.posts[0]); diff != "" {
		t.Errorf("hide post (-want +got):\n%s", diff)
	}
	s.SetActive(context.Background(), prefs, cs1332(), true)
	if got := f.posts[1].Get("prefs_form:_idcl"); got != "prefs_form:_id43" {
		t.Errorf("show button = %q", got)
	}
	if err := s.SetActive(context.Background(), "", cs1332(), true); err == nil {
		t.Error("posted without a preferences link")
	}
}

func TestLoaderAnnouncements(t *testing.T) {
	pages := map[string]string{}
	var classes []Class
	for i := 0; i < 3; i++ {
		link := fmt.Sprintf("https://t-square.gatech.edu/portal/pda/gtc-%d", i)
		classes = append(classes, NewClass(fmt.Sprintf("CS-%d-A", 1000+i), link, true, nil))
		pages[link] = `<a href="` + link + `/ann">Announcements</a>`
		pages[link+"/ann"] = fmt.Sprintf(`<table>
<tr><td headers="subject"><a href="m1">Old %d</a></td><td headers="date">Aug %d, 2015 9:00 am</td></tr>
<tr><td headers="subject"><a href="m2">New %d</a></td><td headers="date">Sep %d, 2015 9:00 am</td></tr>
</table>`, i, i+1, i, i+1)
	}
	// One class fails; the rest still load.
	classes = append(classes, NewClass("CS-9999-A", "https://t-square.gatech.edu/portal/pda/missing", true, nil))

	s, _ := newScraper(pages)
	logger, _ := test.NewNullLogger()
	l := NewLoader(s, 2, 4, logger)

	var mu sync.Mutex
	updates := 0
	got, err := l.Announcements(context.Background(), classes, func(snapshot []Announcement) {
		mu.Lock()
		defer mu.Unlock()
		updates++
		if want := updates < len(classes); l.Loading() != want {
			t.Errorf("update %d: Loading() = %v", updates, !want)
		}
		if len(snapshot) > 4 {
			t.Errorf("snapshot of %d exceeds the limit", len(snapshot))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if updates != len(classes) {
		t.Errorf("updates = %d, want one per class", updates)
	}
	if l.Loading() {
		t.Error("still loading after every class reported")
	}
	var names []string
	for _, a := range got {
		names = append(names, a.Name)
	}
	if diff := cmp.Diff([]string{"New 2", "New 1", "New 0", "Old 2"}, names); diff != "" {
		t.Errorf("merged (-want +got):\n%s", diff)
	}
}

func TestLoaderOverlappingLoads(t *testing.T) {
	slow := NewClass("CS-1000-A", "https://t-square.gatech.edu/portal/pda/gtc-slow", true, nil)
	fast := NewClass("CS-2000-A", "https://t-square.gatech.edu/portal/pda/gtc-fast", true, nil)
	s, f := newScraper(map[string]string{
		slow.Link: "<p>No tools</p>",
		fast.Link: "<p>No tools</p>",
	})
	f.hold, f.held, f.release = slow.Link, make(chan struct{}), make(chan struct{})
	logger, _ := test.NewNullLogger()
	l := NewLoader(s, 2, 0, logger)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := l.Announcements(ctx, []Class{slow}, nil)
		done <- err
	}()
	<-f.held

	if _, err := l.Announcements(ctx, []Class{fast}, nil); err != nil {
		t.Fatal(err)
	}
	if !l.Loading() {
		t.Error("a finished load hid the one still running")
	}
	close(f.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if l.Loading() {
		t.Error("still loading after both loads finished")
	}
}

func TestToggleQueueSerializes(t *testing.T) {
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	var order []string
	set := func(ctx context.Context, c Class, active bool) error {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, fmt.Sprintf("%s=%v", c.ID, active))
		mu.Unlock()
		if c.ID == "bad" {
			return errors.New("rejected")
		}
		return nil
	}
	q := NewToggleQueue(context.Background(), set)

	var results []<-chan error
	for _, id := range []string{"a", "b", "bad", "c"} {
		results = append(results, q.Submit(Class{ID: id}, id != "b"))
	}
	for i, r := range results {
		err := <-r
		if (i == 2) != (err != nil) {
			t.Errorf("toggle %d err = %v", i, err)
		}
	}
	q.Close()

	if diff := cmp.Diff([]string{"a=true", "b=false", "bad=true", "c=true"}, order); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if maxInFlight != 1 {
		t.Errorf("%d toggles ran at once", maxInFlight)
	}
	if err := <-q.Submit(Class{ID: "late"}, true); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("submit after close err = %v", err)
	}
}

func TestReadTracker(t *testing.T) {
	o := store.NewOverrides(store.NewMemory(), "gburdell3")
	r, err := NewReadTracker(o)
	if err != nil {
		t.Fatal(err)
	}
	before := Announcement{Name: "old", Date: time.Now().Add(-48 * time.Hour)}
	after := Announcement{Name: "new", Date: time.Now().Add(time.Hour)}
	undated := Announcement{Name: "undated"}

	if unread := r.Unread([]Announcement{before, after, undated}); len(unread) != 1 || unread[0].Name != "new" {
		t.Fatalf("Unread = %+v", unread)
	}
	if err := r.MarkRead(after); err != nil {
		t.Fatal(err)
	}
	// A fresh tracker over the same store agrees.
	r2, _ := NewReadTracker(o)
	if !r2.IsRead(after) {
		t.Error("read state not persisted")
	}
}

func TestRanking(t *testing.T) {
	o := store.NewOverrides(store.NewMemory(), "gburdell3")
	r := NewRanking(o)
	a, b, c := Class{ID: "a"}, Class{ID: "b"}, Class{ID: "c"}
	r.Open(b)
	r.Open(c)
	r.Open(c)
	got, err := r.Frequent([]Class{a, b, c}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Class{c, b}, got); diff != "" {
		t.Errorf("Frequent (-want +got):\n%s", diff)
	}
	if got, _ := r.Frequent([]Class{a, b, c}, 1); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("Frequent(1) = %+v", got)
	}
}
