// Package projection builds the read-only views the dashboard, calendar and
// notifications consume. Nothing here is stored; every view is recomputed from the
// current rows and the deadline calculator.
package projection

import (
	"context"
	"slices"
	"sort"
	"time"

	"equipment-service-backend/internal/deadline"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

// Calendar buckets.
const (
	BucketOverdue     = "overdue"
	BucketUpcoming    = "upcoming"
	BucketUnscheduled = "unscheduled"
)

// NoPriority is the workload key of tasks without a priority.
const NoPriority = "none"

// TechnicianLoad is the open work of one technician.
type TechnicianLoad struct {
	TechnicianName  string                    `json:"technician_name"`
	OnRoster        bool                      `json:"on_roster"`
	TasksBySource   map[model.TaskSource]int  `json:"tasks_by_source"`
	TasksByPriority map[string]int            `json:"tasks_by_priority"`
	IssuesByStatus  map[model.IssueStatus]int `json:"issues_by_status"`
	UnavailableDays []string                  `json:"unavailable_days"`
	OpenTasks       int                       `json:"open_tasks"`
	OpenIssues      int                       `json:"open_issues"`
}

// Unassigned is the open work nobody has picked up.
type Unassigned struct {
	Tasks  []model.MaintenanceTask `json:"tasks"`
	Issues []model.Issue           `json:"issues"`
}

// CalendarEntry is one task coloured by the deadline of its issue.
type CalendarEntry struct {
	Task     model.MaintenanceTask `json:"task"`
	Deadline *deadline.Deadline    `json:"deadline"`
	Urgency  deadline.Urgency      `json:"urgency"`
	Bucket   string                `json:"bucket"`
}

// Calendar partitions the tasks of a window.
type Calendar struct {
	Overdue     []CalendarEntry `json:"overdue"`
	Upcoming    []CalendarEntry `json:"upcoming"`
	Unscheduled []CalendarEntry `json:"unscheduled"`
}

// FeedItem is one entry of the notification feed.
type FeedItem struct {
	Issue    model.Issue        `json:"issue"`
	Deadline *deadline.Deadline `json:"deadline"`
}

// Projector loads rows from the store and derives views from them.
type Projector struct {
	store  store.Store
	policy deadline.Policy
	roster []string
	clock  func() time.Time
}

// NewProjector creates a Projector. clock may be nil for the wall clock.
func NewProjector(s store.Store, policy deadline.Policy, roster []string, clock func() time.Time) *Projector {
	if clock == nil {
		clock = time.Now
	}
	return &Projector{store: s, policy: policy, roster: slices.Clone(roster), clock: clock}
}

func (p *Projector) now() time.Time {
	return p.clock().UTC()
}

func openIssueStatuses() []model.IssueStatus {
	return []model.IssueStatus{model.IssueStatusOpen, model.IssueStatusInProgress, model.IssueStatusInService}
}

func openTaskStatuses() []model.TaskStatus {
	return []model.TaskStatus{model.TaskPendingSchedule, model.TaskScheduled, model.TaskInProgress}
}

// Workload returns the open work of every roster technician and of anyone else
// still holding work.
func (p *Projector) Workload(ctx context.Context) ([]TechnicianLoad, error) {
	tasks, err := p.store.ListTasks(ctx, store.TaskFilter{Statuses: openTaskStatuses()})
	if err != nil {
		return nil, err
	}
	issues, err := p.store.ListIssues(ctx, store.IssueFilter{Statuses: openIssueStatuses()})
	if err != nil {
		return nil, err
	}
	days, err := p.store.ListUnavailability(ctx, "")
	if err != nil {
		return nil, err
	}
	return BuildWorkload(p.roster, tasks, issues, days), nil
}

// BuildWorkload counts open tasks and issues per technician. Roster members come
// first in roster order; others follow by name.
func BuildWorkload(roster []string, tasks []model.MaintenanceTask, issues []model.Issue, days []model.TechnicianUnavailability) []TechnicianLoad {
	loads := map[string]*TechnicianLoad{}
	get := func(name string) *TechnicianLoad {
		if l, ok := loads[name]; ok {
			return l
		}
		l := &TechnicianLoad{
			TechnicianName:  name,
			OnRoster:        slices.Contains(roster, name),
			TasksBySource:   map[model.TaskSource]int{},
			TasksByPriority: map[string]int{},
			IssuesByStatus:  map[model.IssueStatus]int{},
			UnavailableDays: []string{},
		}
		loads[name] = l
		return l
	}
	for _, name := range roster {
		get(name)
	}

	for _, t := range tasks {
		if t.Status.Terminal() || !t.TechnicianName.Valid || t.TechnicianName.String == "" {
			continue
		}
		l := get(t.TechnicianName.String)
		l.OpenTasks++
		l.TasksBySource[t.Source]++
		priority := NoPriority
		if t.Priority.Valid {
			priority = t.Priority.String
		}
		l.TasksByPriority[priority]++
	}
	for _, i := range issues {
		if i.Status.Terminal() || !i.HasTechnician() {
			continue
		}
		l := get(i.TechnicianName.String)
		l.OpenIssues++
		l.IssuesByStatus[i.Status]++
	}
	for _, d := range days {
		if l, ok := loads[d.TechnicianName]; ok {
			l.UnavailableDays = append(l.UnavailableDays, d.Date)
		}
	}

	out := make([]TechnicianLoad, 0, len(loads))
	for _, name := range roster {
		out = append(out, *loads[name])
		delete(loads, name)
	}
	var others []string
	for name := range loads {
		others = append(others, name)
	}
	sort.Strings(others)
	for _, name := range others {
		out = append(out, *loads[name])
	}
	for i := range out {
		sort.Strings(out[i].UnavailableDays)
	}
	return out
}

// Unassigned returns open tasks and issues without a technician.
func (p *Projector) Unassigned(ctx context.Context) (*Unassigned, error) {
	tasks, err := p.store.ListTasks(ctx, store.TaskFilter{Statuses: openTaskStatuses()})
	if err != nil {
		return nil, err
	}
	issues, err := p.store.ListIssues(ctx, store.IssueFilter{Statuses: openIssueStatuses()})
	if err != nil {
		return nil, err
	}
	return BuildUnassigned(tasks, issues), nil
}

// BuildUnassigned keeps the open rows that have no technician.
func BuildUnassigned(tasks []model.MaintenanceTask, issues []model.Issue) *Unassigned {
	u := &Unassigned{Tasks: []model.MaintenanceTask{}, Issues: []model.Issue{}}
	for _, t := range tasks {
		if !t.Status.Terminal() && (!t.TechnicianName.Valid || t.TechnicianName.String == "") {
			u.Tasks = append(u.Tasks, t)
		}
	}
	for _, i := range issues {
		if !i.Status.Terminal() && !i.HasTechnician() {
			u.Issues = append(u.Issues, i)
		}
	}
	return u
}

// Calendar partitions the open tasks scheduled in [from, to), plus every task
// still waiting for a date.
func (p *Projector) Calendar(ctx context.Context, from, to time.Time) (*Calendar, error) {
	tasks, err := p.store.ListTasks(ctx, store.TaskFilter{
		Statuses:       openTaskStatuses(),
		From:           from,
		To:             to,
		IncludePending: true,
	})
	if err != nil {
		return nil, err
	}
	issues, products, err := p.issueContext(ctx)
	if err != nil {
		return nil, err
	}
	return BuildCalendar(p.policy, tasks, issues, products, p.now()), nil
}

// issueContext loads the open issues and their products, keyed by id.
func (p *Projector) issueContext(ctx context.Context) (map[string]*model.Issue, map[string]*model.Product, error) {
	list, err := p.store.ListIssues(ctx, store.IssueFilter{Statuses: openIssueStatuses()})
	if err != nil {
		return nil, nil, err
	}
	issues := make(map[string]*model.Issue, len(list))
	ids := []string{}
	for i := range list {
		issues[list[i].ID] = &list[i]
		if !slices.Contains(ids, list[i].ProductID) {
			ids = append(ids, list[i].ProductID)
		}
	}
	prods, err := p.store.ListProducts(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	products := make(map[string]*model.Product, len(prods))
	for i := range prods {
		products[prods[i].ID] = &prods[i]
	}
	return issues, products, nil
}

// BuildCalendar colours each task by the deadline of its issue. A task is overdue
// when that deadline has expired, or, for tasks with no deadline, when its date
// has passed.
func BuildCalendar(policy deadline.Policy, tasks []model.MaintenanceTask, issues map[string]*model.Issue, products map[string]*model.Product, now time.Time) *Calendar {
	cal := &Calendar{Overdue: []CalendarEntry{}, Upcoming: []CalendarEntry{}, Unscheduled: []CalendarEntry{}}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		entry := CalendarEntry{Task: t, Urgency: deadline.UrgencyNormal}
		if t.IssueID.Valid {
			if issue, ok := issues[t.IssueID.String]; ok {
				entry.Deadline = policy.For(issue, products[issue.ProductID], now)
			}
		}
		if entry.Deadline != nil {
			entry.Urgency = entry.Deadline.Urgency
		}

		switch {
		case !t.ScheduledDate.Valid:
			entry.Bucket = BucketUnscheduled
			cal.Unscheduled = append(cal.Unscheduled, entry)
		case (entry.Deadline != nil && entry.Deadline.Expired) || (entry.Deadline == nil && t.ScheduledDate.Time.Before(now)):
			entry.Bucket = BucketOverdue
			entry.Urgency = deadline.UrgencyCritical
			cal.Overdue = append(cal.Overdue, entry)
		default:
			entry.Bucket = BucketUpcoming
			cal.Upcoming = append(cal.Upcoming, entry)
		}
	}
	return cal
}

// NotificationFeed returns open customer issues without a technician, most urgent first.
func (p *Projector) NotificationFeed(ctx context.Context) ([]FeedItem, error) {
	list, err := p.store.ListIssues(ctx, store.IssueFilter{
		Statuses: []model.IssueStatus{model.IssueStatusOpen},
		Source:   model.SourceCustomer,
	})
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, i := range list {
		if !slices.Contains(ids, i.ProductID) {
			ids = append(ids, i.ProductID)
		}
	}
	prods, err := p.store.ListProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[string]*model.Product, len(prods))
	for i := range prods {
		products[prods[i].ID] = &prods[i]
	}
	return BuildFeed(p.policy, list, products, p.now()), nil
}

// BuildFeed orders unassigned open customer issues by remaining SLA ascending.
// Issues without a deadline go last; ties go to the older issue.
func BuildFeed(policy deadline.Policy, issues []model.Issue, products map[string]*model.Product, now time.Time) []FeedItem {
	feed := []FeedItem{}
	for _, i := range issues {
		if i.Source != model.SourceCustomer || i.Status != model.IssueStatusOpen || i.HasTechnician() {
			continue
		}
		feed = append(feed, FeedItem{Issue: i, Deadline: policy.For(&i, products[i.ProductID], now)})
	}

	sort.SliceStable(feed, func(a, b int) bool {
		da, db := feed[a].Deadline, feed[b].Deadline
		switch {
		case da != nil && db == nil:
			return true
		case da == nil && db != nil:
			return false
		case da != nil && db != nil && da.Remaining != db.Remaining:
			return da.Remaining < db.Remaining
		}
		return feed[a].Issue.CreatedAt.Before(feed[b].Issue.CreatedAt)
	})
	return feed
}
