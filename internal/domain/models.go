package domain

import "time"

type CommandKind string

const (
	CommandChat              CommandKind = "chat"
	CommandSummarizeMeeting  CommandKind = "summarize_meeting"
	CommandSummarizeClient   CommandKind = "summarize_client"
	CommandCreateTicket      CommandKind = "create_ticket"
	CommandUpdateTicket      CommandKind = "update_ticket"
	CommandTeamMember        CommandKind = "team_member"
	CommandWeeklySummary     CommandKind = "weekly_summary"
	CommandClearConversation CommandKind = "clear_conversation"
)

type Instruction struct {
	Kind      CommandKind `json:"kind"`
	Text      string      `json:"text"`
	UserID    string      `json:"user_id"`
	ChannelID string      `json:"channel_id"`
}

type Response struct {
	Text      string `json:"text"`
	Ephemeral bool   `json:"ephemeral"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	State       string   `json:"state,omitempty"`
	Progress    float64  `json:"progress,omitempty"`
	TargetDate  string   `json:"target_date,omitempty"`
	Teams       []string `json:"teams,omitempty"`
}

type Milestone struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TargetDate  string `json:"target_date,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

type Issue struct {
	ID            string `json:"id"`
	Identifier    string `json:"identifier"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	StateName     string `json:"state,omitempty"`
	StateType     string `json:"state_type,omitempty"`
	Priority      int    `json:"priority,omitempty"`
	Estimate      int    `json:"estimate,omitempty"`
	AssigneeName  string `json:"assignee,omitempty"`
	TeamName      string `json:"team,omitempty"`
	TeamKey       string `json:"team_key,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	ProjectName   string `json:"project,omitempty"`
	MilestoneID   string `json:"milestone_id,omitempty"`
	MilestoneName string `json:"milestone,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

const issueStateCompleted = "completed"

func (i Issue) Completed() bool {
	return i.StateType == issueStateCompleted
}

type WorkspaceContext struct {
	Projects   []Project   `json:"projects"`
	Milestones []Milestone `json:"milestones"`
	Issues     []Issue     `json:"issues"`
}

func (w WorkspaceContext) ActiveIssues() []Issue {
	var out []Issue
	for _, issue := range w.Issues {
		if !issue.Completed() {
			out = append(out, issue)
		}
	}
	return out
}

func (w WorkspaceContext) CompletedIssues() []Issue {
	var out []Issue
	for _, issue := range w.Issues {
		if issue.Completed() {
			out = append(out, issue)
		}
	}
	return out
}

type TranscriptRecord struct {
	ID              string   `json:"id"`
	MeetingDate     string   `json:"meeting_date"`
	Participants    []string `json:"participants,omitempty"`
	ProjectTags     []string `json:"project_tags,omitempty"`
	FilteredContent string   `json:"filtered_content,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

type Page struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Excerpt      string `json:"excerpt,omitempty"`
	LastEditedAt string `json:"last_edited_at,omitempty"`
}

type MemberSummary struct {
	Name            string  `json:"name"`
	ActiveIssues    []Issue `json:"active_issues"`
	CompletedIssues []Issue `json:"completed_issues"`
}

type ClientStatus struct {
	ClientName string `json:"client_name"`
	Status     string `json:"status,omitempty"`
	Summary    string `json:"summary,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type ClientContext struct {
	Name     string        `json:"name"`
	Projects []Project     `json:"projects"`
	Issues   []Issue       `json:"issues"`
	Pages    []Page        `json:"pages"`
	Status   *ClientStatus `json:"status,omitempty"`
}

type SessionInfo struct {
	SessionID          string `json:"session_id"`
	UserID             string `json:"user_id"`
	ChannelID          string `json:"channel_id"`
	PreviousResponseID string `json:"previous_response_id,omitempty"`
	UpdatedAt          string `json:"updated_at,omitempty"`
	HasConversation    bool   `json:"has_conversation"`
}

// ContextSnapshot is the assembled per-command context. The base fragments
// (Workspace, Transcripts, Members) are shared through the cache; everything
// else is fetched per invocation. NotFound carries explicit absence markers for
// named lookups that resolved to nothing; Unavailable carries failure notes for
// optional sources that could not be loaded.
type ContextSnapshot struct {
	Kind            CommandKind        `json:"kind"`
	Workspace       *WorkspaceContext  `json:"workspace,omitempty"`
	Transcripts     []TranscriptRecord `json:"transcripts,omitempty"`
	Members         []MemberSummary    `json:"members,omitempty"`
	Conversation    *SessionInfo       `json:"conversation,omitempty"`
	SpecificMeeting *TranscriptRecord  `json:"specific_meeting,omitempty"`
	Client          *ClientContext     `json:"client,omitempty"`
	Member          *MemberSummary     `json:"member,omitempty"`
	NotFound        map[string]string  `json:"not_found,omitempty"`
	Unavailable     map[string]string  `json:"unavailable,omitempty"`
	FetchedAt       time.Time          `json:"fetched_at"`
}

func (s *ContextSnapshot) MarkNotFound(source, message string) {
	if s.NotFound == nil {
		s.NotFound = map[string]string{}
	}
	s.NotFound[source] = message
}

func (s *ContextSnapshot) MarkUnavailable(source, message string) {
	if s.Unavailable == nil {
		s.Unavailable = map[string]string{}
	}
	s.Unavailable[source] = message
}

type TicketDraft struct {
	Title       string `json:"issue_title"`
	Description string `json:"issue_description"`
	Project     string `json:"project,omitempty"`
	Assignee    string `json:"assign_team_member,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Estimate    int    `json:"time_estimate,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
)

type MutationRequest struct {
	Kind     MutationKind      `json:"kind"`
	TargetID string            `json:"target_id,omitempty"`
	Draft    TicketDraft       `json:"draft"`
	Fields   map[string]string `json:"fields,omitempty"`
}
