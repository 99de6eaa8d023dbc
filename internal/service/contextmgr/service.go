// Package contextmgr assembles the per-command context snapshot. Each command
// kind maps to a fixed fetch plan: which base sources it needs from the cache
// and which command-specific lookup augments them.
package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alphamachine/gateway/internal/cache"
	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/service/ports"
)

const (
	SourceTickets      = "tickets"
	SourceDocuments    = "documents"
	SourcePages        = "pages"
	SourceConversation = "conversation"
	SourceClientStatus = "client_status"

	transcriptWindow = 7 * 24 * time.Hour
	transcriptLimit  = 5
)

var ErrUnknownCommand = errors.New("unknown_command")

type ContextUnavailableError struct {
	Source string
	Err    error
}

func (e *ContextUnavailableError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("context_unavailable: couldn't load %s", e.Source)
}

func (e *ContextUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type extraFetch int

const (
	extraNone extraFetch = iota
	extraConversation
	extraMeeting
	extraClientPages
	extraMember
)

type fetchPlan struct {
	tickets   bool
	documents bool
	extra     extraFetch
}

// One row per command kind; an unknown kind is a hard error, never an empty
// snapshot.
var fetchPlans = map[domain.CommandKind]fetchPlan{
	domain.CommandChat:              {tickets: true, documents: true, extra: extraConversation},
	domain.CommandSummarizeMeeting:  {documents: true, extra: extraMeeting},
	domain.CommandSummarizeClient:   {tickets: true, documents: true, extra: extraClientPages},
	domain.CommandCreateTicket:      {tickets: true, documents: true},
	domain.CommandUpdateTicket:      {tickets: true},
	domain.CommandTeamMember:        {tickets: true, extra: extraMember},
	domain.CommandWeeklySummary:     {tickets: true, documents: true},
	domain.CommandClearConversation: {},
}

// KnownCommands lists every command kind the dispatcher accepts.
func KnownCommands() []domain.CommandKind {
	out := make([]domain.CommandKind, 0, len(fetchPlans))
	for kind := range fetchPlans {
		out = append(out, kind)
	}
	return out
}

type Args struct {
	UserID           string
	ChannelID        string
	ClientName       string
	MemberName       string
	MeetingTimestamp string
}

type Dependencies struct {
	Tickets        ports.TicketReader
	Documents      ports.DocumentReader
	Pages          ports.PageReader
	ClientStatuses ports.ClientStatusReader
	Conversations  ports.ConversationStore
	Cache          *cache.Cache
	Logger         *zap.Logger
	FetchTimeout   time.Duration
	Now            func() time.Time
}

type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(cache.DefaultTTL)
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 10 * time.Second
	}
	return &Service{deps: deps}
}

// BuildContext assembles the snapshot for one command invocation. Base sources
// named by the plan are required: if one of them cannot be loaded the command
// fails with ContextUnavailable naming the source. Extra lookups are optional;
// a failure becomes an unavailable note and a zero-match lookup becomes an
// explicit not-found marker, so the downstream generation step can report it.
func (s *Service) BuildContext(ctx context.Context, kind domain.CommandKind, args Args) (domain.ContextSnapshot, error) {
	plan, ok := fetchPlans[kind]
	if !ok {
		return domain.ContextSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}

	snapshot := domain.ContextSnapshot{Kind: kind, FetchedAt: s.deps.Now()}
	if !plan.tickets && !plan.documents && plan.extra == extraNone {
		return snapshot, nil
	}

	if plan.tickets || plan.documents {
		base, failures := s.loadBase(ctx)
		for source, note := range failures {
			required := (source == SourceTickets && plan.tickets) || (source == SourceDocuments && plan.documents)
			if required {
				s.deps.Logger.Warn("required context source unavailable",
					zap.String("command", string(kind)), zap.String("source", source))
				return domain.ContextSnapshot{}, &ContextUnavailableError{Source: source, Err: errors.New(note)}
			}
			snapshot.MarkUnavailable(source, note)
		}
		if plan.tickets {
			workspaceCopy := base.Workspace
			snapshot.Workspace = &workspaceCopy
			snapshot.Members = base.Members
		}
		if plan.documents {
			snapshot.Transcripts = base.Transcripts
		}
		snapshot.FetchedAt = base.FetchedAt
	}

	s.applyExtra(ctx, plan.extra, args, &snapshot)
	return snapshot, nil
}

var errPartialBase = errors.New("base context incomplete")

// loadBase serves the memoized base context, refetching on expiry. A partial
// fetch (one source down) is returned for this invocation only and never
// cached, so the next command retries the failed source.
func (s *Service) loadBase(ctx context.Context) (cache.BaseContext, map[string]string) {
	var (
		mu       sync.Mutex
		partial  cache.BaseContext
		failures map[string]string
	)

	base, err := s.deps.Cache.GetBase(ctx, func(ctx context.Context) (cache.BaseContext, error) {
		b, f := s.fetchBase(ctx)
		if len(f) > 0 {
			mu.Lock()
			partial, failures = b, f
			mu.Unlock()
			return cache.BaseContext{}, errPartialBase
		}
		return b, nil
	})
	if err != nil {
		mu.Lock()
		defer mu.Unlock()
		return partial, failures
	}
	return base, nil
}

// fetchBase pulls tickets and recent documents concurrently. The sources are
// independent: a failure in one never cancels the other.
func (s *Service) fetchBase(ctx context.Context) (cache.BaseContext, map[string]string) {
	base := cache.BaseContext{FetchedAt: s.deps.Now()}
	failures := map[string]string{}
	var mu sync.Mutex

	g := &errgroup.Group{}
	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
		defer cancel()
		ws, err := s.deps.Tickets.WorkspaceContext(fetchCtx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures[SourceTickets] = err.Error()
			return nil
		}
		base.Workspace = ws
		base.Members = deriveMembers(ws.Issues)
		return nil
	})
	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
		defer cancel()
		since := s.deps.Now().Add(-transcriptWindow)
		transcripts, err := s.deps.Documents.RecentTranscripts(fetchCtx, since, transcriptLimit)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures[SourceDocuments] = err.Error()
			return nil
		}
		base.Transcripts = transcripts
		return nil
	})
	_ = g.Wait()

	return base, failures
}

func (s *Service) applyExtra(ctx context.Context, extra extraFetch, args Args, snapshot *domain.ContextSnapshot) {
	switch extra {
	case extraConversation:
		s.attachConversation(ctx, args, snapshot)
	case extraMeeting:
		attachMeeting(args.MeetingTimestamp, snapshot)
	case extraClientPages:
		s.attachClient(ctx, args.ClientName, snapshot)
	case extraMember:
		attachMember(args.MemberName, snapshot)
	}
}

func (s *Service) attachConversation(ctx context.Context, args Args, snapshot *domain.ContextSnapshot) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
	defer cancel()

	info, found, err := s.deps.Conversations.Get(fetchCtx, args.UserID, args.ChannelID)
	if err != nil {
		snapshot.MarkUnavailable(SourceConversation, err.Error())
		return
	}
	if !found {
		info = domain.SessionInfo{
			SessionID: args.UserID + "_" + args.ChannelID,
			UserID:    args.UserID,
			ChannelID: args.ChannelID,
		}
	}
	snapshot.Conversation = &info
}

func attachMeeting(timestamp string, snapshot *domain.ContextSnapshot) {
	if timestamp == "" {
		if len(snapshot.Transcripts) > 0 {
			snapshot.SpecificMeeting = &snapshot.Transcripts[0]
		} else {
			snapshot.MarkNotFound("meeting", "no recent meetings found")
		}
		return
	}
	for i := range snapshot.Transcripts {
		if strings.Contains(snapshot.Transcripts[i].MeetingDate, timestamp) {
			snapshot.SpecificMeeting = &snapshot.Transcripts[i]
			return
		}
	}
	snapshot.MarkNotFound("meeting", fmt.Sprintf("no meeting matches %q", timestamp))
}

func (s *Service) attachClient(ctx context.Context, clientName string, snapshot *domain.ContextSnapshot) {
	client := domain.ClientContext{Name: clientName}
	needle := strings.ToLower(clientName)

	projectIDs := map[string]bool{}
	if snapshot.Workspace != nil {
		for _, project := range snapshot.Workspace.Projects {
			if needle != "" && strings.Contains(strings.ToLower(project.Name), needle) {
				client.Projects = append(client.Projects, project)
				projectIDs[project.ID] = true
			}
		}
		for _, issue := range snapshot.Workspace.ActiveIssues() {
			if projectIDs[issue.ProjectID] {
				client.Issues = append(client.Issues, issue)
			}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
	defer cancel()
	pages, err := s.deps.Pages.SearchPages(fetchCtx, clientName)
	if err != nil {
		snapshot.MarkUnavailable(SourcePages, err.Error())
	} else {
		client.Pages = pages
	}

	statusCtx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
	defer cancel()
	status, err := s.deps.ClientStatuses.GetClientStatus(statusCtx, clientName)
	if err != nil {
		snapshot.MarkUnavailable(SourceClientStatus, err.Error())
	} else {
		client.Status = status
	}

	if len(client.Projects) == 0 && len(client.Pages) == 0 && client.Status == nil {
		snapshot.MarkNotFound("client", fmt.Sprintf("no client matches %q", clientName))
	}
	snapshot.Client = &client
}

func attachMember(memberName string, snapshot *domain.ContextSnapshot) {
	needle := strings.ToLower(memberName)
	for i := range snapshot.Members {
		if needle != "" && strings.Contains(strings.ToLower(snapshot.Members[i].Name), needle) {
			snapshot.Member = &snapshot.Members[i]
			return
		}
	}
	snapshot.MarkNotFound("member", fmt.Sprintf("no team member matches %q", memberName))
}

// deriveMembers groups the workspace issues by assignee, mirroring how the
// team view is built for prompts.
func deriveMembers(issues []domain.Issue) []domain.MemberSummary {
	byName := map[string]*domain.MemberSummary{}
	var order []string
	for _, issue := range issues {
		if issue.AssigneeName == "" {
			continue
		}
		member, ok := byName[issue.AssigneeName]
		if !ok {
			member = &domain.MemberSummary{Name: issue.AssigneeName}
			byName[issue.AssigneeName] = member
			order = append(order, issue.AssigneeName)
		}
		if issue.Completed() {
			member.CompletedIssues = append(member.CompletedIssues, issue)
		} else {
			member.ActiveIssues = append(member.ActiveIssues, issue)
		}
	}

	out := make([]domain.MemberSummary, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}
