// Package linear is a thin client for the ticket-workspace GraphQL API. Read
// queries ride on the read capability; every mutation takes a write capability
// and re-validates it against the credential pair before any request is built.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/workspace"
)

const (
	defaultBaseURL = "https://api.linear.app/graphql"
	defaultTimeout = 10 * time.Second

	ErrorCodeRequestFailed    = "linear_request_failed"
	ErrorCodeInvalidReply     = "linear_invalid_reply"
	ErrorCodeMutationRejected = "linear_mutation_rejected"
	ErrorCodeNotFound         = "linear_not_found"
)

type APIError struct {
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Options struct {
	BaseURL         string
	HTTPClient      *http.Client
	TeamName        string
	DefaultAssignee string
}

type Client struct {
	creds           workspace.CredentialPair
	baseURL         string
	httpClient      *http.Client
	teamName        string
	defaultAssignee string
}

func NewClient(creds workspace.CredentialPair, opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		creds:           creds,
		baseURL:         baseURL,
		httpClient:      httpClient,
		teamName:        opts.TeamName,
		defaultAssignee: opts.DefaultAssignee,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, token, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return &APIError{Code: ErrorCodeRequestFailed, Message: "failed to encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return &APIError{Code: ErrorCodeRequestFailed, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Authorization", token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &APIError{Code: ErrorCodeRequestFailed, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return &APIError{Code: ErrorCodeRequestFailed, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{
			Code:    ErrorCodeRequestFailed,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return &APIError{Code: ErrorCodeInvalidReply, Message: "response is not valid json", Err: err}
	}
	if len(envelope.Errors) > 0 {
		return &APIError{Code: ErrorCodeRequestFailed, Message: envelope.Errors[0].Message}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &APIError{Code: ErrorCodeInvalidReply, Message: "unexpected response shape", Err: err}
		}
	}
	return nil
}

const workspaceContextQuery = `
query {
  projects { nodes {
    id name description state targetDate progress
    teams { nodes { name key } }
  } }
  projectMilestones { nodes {
    id name description targetDate
    project { id name }
  } }
  issues { nodes {
    id identifier title description
    state { name type }
    priority estimate
    assignee { name }
    team { name key }
    project { id name }
    projectMilestone { id name }
    createdAt updatedAt
  } }
}`

type nameNode struct {
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

type refNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type workspaceContextData struct {
	Projects struct {
		Nodes []struct {
			ID          string  `json:"id"`
			Name        string  `json:"name"`
			Description string  `json:"description"`
			State       string  `json:"state"`
			TargetDate  string  `json:"targetDate"`
			Progress    float64 `json:"progress"`
			Teams       struct {
				Nodes []nameNode `json:"nodes"`
			} `json:"teams"`
		} `json:"nodes"`
	} `json:"projects"`
	ProjectMilestones struct {
		Nodes []struct {
			ID          string   `json:"id"`
			Name        string   `json:"name"`
			Description string   `json:"description"`
			TargetDate  string   `json:"targetDate"`
			Project     *refNode `json:"project"`
		} `json:"nodes"`
	} `json:"projectMilestones"`
	Issues struct {
		Nodes []issueNode `json:"nodes"`
	} `json:"issues"`
}

type issueNode struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       *struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
	Priority         int        `json:"priority"`
	Estimate         int        `json:"estimate"`
	Assignee         *nameNode  `json:"assignee"`
	Team             *nameNode  `json:"team"`
	Project          *refNode   `json:"project"`
	ProjectMilestone *refNode   `json:"projectMilestone"`
	CreatedAt        string     `json:"createdAt"`
	UpdatedAt        string     `json:"updatedAt"`
}

func (n issueNode) toDomain() domain.Issue {
	issue := domain.Issue{
		ID:          n.ID,
		Identifier:  n.Identifier,
		Title:       n.Title,
		Description: n.Description,
		Priority:    n.Priority,
		Estimate:    n.Estimate,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
	if n.State != nil {
		issue.StateName = n.State.Name
		issue.StateType = n.State.Type
	}
	if n.Assignee != nil {
		issue.AssigneeName = n.Assignee.Name
	}
	if n.Team != nil {
		issue.TeamName = n.Team.Name
		issue.TeamKey = n.Team.Key
	}
	if n.Project != nil {
		issue.ProjectID = n.Project.ID
		issue.ProjectName = n.Project.Name
	}
	if n.ProjectMilestone != nil {
		issue.MilestoneID = n.ProjectMilestone.ID
		issue.MilestoneName = n.ProjectMilestone.Name
	}
	return issue
}

// WorkspaceContext fetches the current projects, milestones, and issues of the
// shared workspace using the read capability.
func (c *Client) WorkspaceContext(ctx context.Context) (domain.WorkspaceContext, error) {
	var data workspaceContextData
	if err := c.do(ctx, c.creds.Read().Token(), workspaceContextQuery, nil, &data); err != nil {
		return domain.WorkspaceContext{}, err
	}

	out := domain.WorkspaceContext{}
	for _, p := range data.Projects.Nodes {
		project := domain.Project{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			State:       p.State,
			TargetDate:  p.TargetDate,
			Progress:    p.Progress,
		}
		for _, team := range p.Teams.Nodes {
			project.Teams = append(project.Teams, team.Name)
		}
		out.Projects = append(out.Projects, project)
	}
	for _, m := range data.ProjectMilestones.Nodes {
		milestone := domain.Milestone{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			TargetDate:  m.TargetDate,
		}
		if m.Project != nil {
			milestone.ProjectID = m.Project.ID
			milestone.ProjectName = m.Project.Name
		}
		out.Milestones = append(out.Milestones, milestone)
	}
	for _, n := range data.Issues.Nodes {
		out.Issues = append(out.Issues, n.toDomain())
	}
	return out, nil
}

func (c *Client) teamID(ctx context.Context, token string) (string, error) {
	var data struct {
		Teams struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	if err := c.do(ctx, token, `query { teams { nodes { id name key } } }`, nil, &data); err != nil {
		return "", err
	}
	for _, team := range data.Teams.Nodes {
		if team.Name == c.teamName {
			return team.ID, nil
		}
	}
	return "", &APIError{Code: ErrorCodeNotFound, Message: fmt.Sprintf("team %q not found", c.teamName)}
}

func (c *Client) userID(ctx context.Context, token, email string) (string, error) {
	var data struct {
		Users struct {
			Nodes []struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"nodes"`
		} `json:"users"`
	}
	if err := c.do(ctx, token, `query { users { nodes { id email name } } }`, nil, &data); err != nil {
		return "", err
	}
	for _, user := range data.Users.Nodes {
		if user.Email == email {
			return user.ID, nil
		}
	}
	return "", &APIError{Code: ErrorCodeNotFound, Message: fmt.Sprintf("user %q not found", email)}
}

func (c *Client) getOrCreateProject(ctx context.Context, token, teamID, name string) (string, error) {
	var data struct {
		Projects struct {
			Nodes []refNode `json:"nodes"`
		} `json:"projects"`
	}
	if err := c.do(ctx, token, `query { projects { nodes { id name } } }`, nil, &data); err != nil {
		return "", err
	}
	for _, project := range data.Projects.Nodes {
		if project.Name == name {
			return project.ID, nil
		}
	}

	const mutation = `
mutation CreateProject($input: ProjectCreateInput!) {
  projectCreate(input: $input) {
    success
    project { id name }
  }
}`
	var result struct {
		ProjectCreate struct {
			Success bool    `json:"success"`
			Project refNode `json:"project"`
		} `json:"projectCreate"`
	}
	variables := map[string]interface{}{
		"input": map[string]interface{}{
			"name":    name,
			"teamIds": []string{teamID},
			"state":   "started",
		},
	}
	if err := c.do(ctx, token, mutation, variables, &result); err != nil {
		return "", err
	}
	if !result.ProjectCreate.Success {
		return "", &APIError{Code: ErrorCodeMutationRejected, Message: fmt.Sprintf("project %q was not created", name)}
	}
	return result.ProjectCreate.Project.ID, nil
}

// CreateIssue resolves the team, assignee, and optional project, then issues
// the create mutation against the isolated workspace.
func (c *Client) CreateIssue(ctx context.Context, cap workspace.WriteCapability, draft domain.TicketDraft) (domain.Issue, error) {
	if err := c.creds.AuthorizeWrite(cap); err != nil {
		return domain.Issue{}, err
	}

	token := cap.Token()
	teamID, err := c.teamID(ctx, token)
	if err != nil {
		return domain.Issue{}, err
	}
	assignee := draft.Assignee
	if assignee == "" {
		assignee = c.defaultAssignee
	}
	assigneeID, err := c.userID(ctx, token, assignee)
	if err != nil {
		return domain.Issue{}, err
	}

	input := map[string]interface{}{
		"title":      draft.Title,
		"teamId":     teamID,
		"assigneeId": assigneeID,
	}
	if draft.Description != "" {
		input["description"] = draft.Description
	}
	if draft.Priority > 0 {
		input["priority"] = draft.Priority
	}
	if draft.Estimate > 0 {
		input["estimate"] = draft.Estimate
	}
	if draft.Deadline != "" {
		input["dueDate"] = draft.Deadline
	}
	if draft.Project != "" {
		projectID, err := c.getOrCreateProject(ctx, token, teamID, draft.Project)
		if err != nil {
			return domain.Issue{}, err
		}
		input["projectId"] = projectID
	}

	const mutation = `
mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue {
      id identifier title description priority estimate
      assignee { name } team { name key } project { id name }
    }
  }
}`
	var result struct {
		IssueCreate struct {
			Success bool      `json:"success"`
			Issue   issueNode `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, token, mutation, map[string]interface{}{"input": input}, &result); err != nil {
		return domain.Issue{}, err
	}
	if !result.IssueCreate.Success {
		return domain.Issue{}, &APIError{Code: ErrorCodeMutationRejected, Message: "issue was not created"}
	}
	return result.IssueCreate.Issue.toDomain(), nil
}

// stateID resolves a workflow state name for the issue's team,
// case-insensitively.
func (c *Client) stateID(ctx context.Context, token, issueID, stateName string) (string, error) {
	var data struct {
		Issue struct {
			Team struct {
				States struct {
					Nodes []refNode `json:"nodes"`
				} `json:"states"`
			} `json:"team"`
		} `json:"issue"`
	}
	const query = `
query IssueStates($id: String!) {
  issue(id: $id) {
    team { states { nodes { id name } } }
  }
}`
	if err := c.do(ctx, token, query, map[string]interface{}{"id": issueID}, &data); err != nil {
		return "", err
	}
	for _, state := range data.Issue.Team.States.Nodes {
		if strings.EqualFold(state.Name, stateName) {
			return state.ID, nil
		}
	}
	return "", &APIError{Code: ErrorCodeNotFound, Message: fmt.Sprintf("workflow state %q not found", stateName)}
}

// UpdateIssue applies the given field changes to an existing issue. State and
// assignee values arrive as names and are resolved to ids before the mutation.
func (c *Client) UpdateIssue(ctx context.Context, cap workspace.WriteCapability, issueID string, fields map[string]string) (domain.Issue, error) {
	if err := c.creds.AuthorizeWrite(cap); err != nil {
		return domain.Issue{}, err
	}

	token := cap.Token()
	input := map[string]interface{}{}
	for key, value := range fields {
		switch key {
		case "title", "description", "dueDate":
			input[key] = value
		case "priority", "estimate":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				continue
			}
			input[key] = n
		case "state":
			stateID, err := c.stateID(ctx, token, issueID, value)
			if err != nil {
				return domain.Issue{}, err
			}
			input["stateId"] = stateID
		case "assignee":
			assigneeID, err := c.userID(ctx, token, value)
			if err != nil {
				return domain.Issue{}, err
			}
			input["assigneeId"] = assigneeID
		}
	}
	if len(input) == 0 {
		return domain.Issue{}, &APIError{Code: ErrorCodeMutationRejected, Message: "no updatable fields supplied"}
	}

	const mutation = `
mutation UpdateIssue($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) {
    success
    issue {
      id identifier title description priority estimate
      state { name type } assignee { name } project { id name }
    }
  }
}`
	var result struct {
		IssueUpdate struct {
			Success bool      `json:"success"`
			Issue   issueNode `json:"issue"`
		} `json:"issueUpdate"`
	}
	variables := map[string]interface{}{"id": issueID, "input": input}
	if err := c.do(ctx, token, mutation, variables, &result); err != nil {
		return domain.Issue{}, err
	}
	if !result.IssueUpdate.Success {
		return domain.Issue{}, &APIError{Code: ErrorCodeMutationRejected, Message: fmt.Sprintf("issue %s was not updated", issueID)}
	}
	return result.IssueUpdate.Issue.toDomain(), nil
}
