package models

import "encoding/json"

// FileChange is one numstat row of a commit, after rename resolution
// and exclusion filtering.
type FileChange struct {
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Path      string `json:"path"`
}

// CommitRecord is a single parsed log entry. Records are immutable once
// parsed; the extractor returns them newest-first.
type CommitRecord struct {
	Hash        string       `json:"hash"`
	AuthorName  string       `json:"author_name"`
	AuthorEmail string       `json:"author_email"`
	Date        string       `json:"date"`
	Message     string       `json:"message"`
	Files       []FileChange `json:"files"`
}

// BlameEntry is one author's attributed line count within a file.
type BlameEntry struct {
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Lines       int    `json:"lines"`
}

// BlameResult holds per-file line attribution. Entry line counts sum to
// TotalLines.
type BlameResult struct {
	FilePath   string       `json:"file_path"`
	Entries    []BlameEntry `json:"entries"`
	TotalLines int          `json:"total_lines"`
}

// PRReview is one reviewer's merged review of a pull request: all review
// passes by the same reviewer collapse into a single entry.
type PRReview struct {
	Author string `json:"author"`
	State  string `json:"state"`
	Body   string `json:"body"`
	IsBot  bool   `json:"is_bot"`
}

// PRData is a merged pull request with its review set.
type PRData struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	AuthorEmail  string     `json:"author_email"`
	IsBot        bool       `json:"is_bot"`
	CreatedAt    string     `json:"created_at"`
	MergedAt     string     `json:"merged_at"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	Body         string     `json:"body"`
	Reviews      []PRReview `json:"reviews"`
	Comments     int        `json:"comments"`
	Files        []string   `json:"files"`
}

// ContributorStats aggregates one contributor's activity, keyed by
// resolved email.
type ContributorStats struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	IsBot          bool     `json:"is_bot"`
	TotalCommits   int      `json:"total_commits"`
	TotalAdditions int      `json:"total_additions"`
	TotalDeletions int      `json:"total_deletions"`
	Modules        []string `json:"modules"`
	FirstCommit    string   `json:"first_commit"`
	LastCommit     string   `json:"last_commit"`
}

// ContributorModuleStats counts one contributor's activity within one
// module.
type ContributorModuleStats struct {
	Commits    int `json:"commits"`
	Additions  int `json:"additions"`
	Deletions  int `json:"deletions"`
	BlameLines int `json:"blame_lines"`
}

// ModuleStats aggregates activity for one logical module (top two path
// segments). BlameOwnership is normalized to sum to 1 across non-zero
// entries; BusFactor is in [0,1].
type ModuleStats struct {
	Module         string                             `json:"module"`
	Contributors   map[string]*ContributorModuleStats `json:"contributors"`
	BusFactor      float64                            `json:"bus_factor"`
	TotalCommits   int                                `json:"total_commits"`
	TotalLines     int                                `json:"total_lines"`
	BlameOwnership map[string]float64                 `json:"blame_ownership"`
}

// GraphNode is a contributor or module node in the knowledge graph.
type GraphNode struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"` // "contributor" or "module"
	Label string  `json:"label"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`

	// Contributor-specific
	TotalCommits   int      `json:"total_commits"`
	TotalLines     int      `json:"total_lines"`
	ExpertiseAreas []string `json:"expertise_areas"`

	// Module-specific
	BusFactor float64 `json:"bus_factor"`
	RiskLevel string  `json:"risk_level"`
}

// GraphLink connects a contributor node to a module node.
type GraphLink struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	Weight         float64 `json:"weight"`
	Commits        int     `json:"commits"`
	ExpertiseDepth string  `json:"expertise_depth"`
}

// GraphData is the assembled knowledge graph.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// ExpertiseClassification is the typed output of the code-expertise
// classifier for one pull request.
type ExpertiseClassification struct {
	PRNumber         int      `json:"pr_number"`
	Author           string   `json:"author"`
	ChangeType       string   `json:"change_type"`
	Complexity       string   `json:"complexity"`
	KnowledgeDepth   string   `json:"knowledge_depth"`
	ExpertiseSignals []string `json:"expertise_signals"`
	ModulesTouched   []string `json:"modules_touched"`
	Summary          string   `json:"summary"`
}

// ReviewClassification is the typed output of the review-quality
// classifier for one (pull request, reviewer) pair.
type ReviewClassification struct {
	PRNumber          int      `json:"pr_number"`
	Reviewer          string   `json:"reviewer"`
	Quality           string   `json:"quality"`
	Signals           []string `json:"signals"`
	KnowledgeTransfer bool     `json:"knowledge_transfer"`
	Summary           string   `json:"summary"`
}

// InsightCard is one finding from the pattern detector.
type InsightCard struct {
	Category    string   `json:"category"` // risk, opportunity, pattern, recommendation
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	People      []string `json:"people"`
	Modules     []string `json:"modules"`
}

// PatternDetectionResult is the typed output of the pattern detector.
type PatternDetectionResult struct {
	ExecutiveSummary string        `json:"executive_summary"`
	Insights         []InsightCard `json:"insights"`
	Recommendations  []string      `json:"recommendations"`
}

// AnalysisResult is the aggregate root for one pipeline run. The
// orchestrator owns it exclusively while running and fills it stage by
// stage; observers only ever see point-in-time snapshots.
type AnalysisResult struct {
	RepoURL           string                    `json:"repo_url"`
	RepoName          string                    `json:"repo_name"`
	AnalysisMonths    int                       `json:"analysis_months"`
	TotalCommits      int                       `json:"total_commits"`
	TotalContributors int                       `json:"total_contributors"`
	TotalPRs          int                       `json:"total_prs"`
	Contributors      []*ContributorStats       `json:"contributors"`
	Modules           []*ModuleStats            `json:"modules"`
	Graph             GraphData                 `json:"graph"`
	Expertise         []ExpertiseClassification `json:"expertise_classifications"`
	ReviewQuality     []ReviewClassification    `json:"review_classifications"`
	PatternResult     PatternDetectionResult    `json:"pattern_result"`
	LoginToEmail      map[string]string         `json:"login_to_email"`
}

// Snapshot returns a deep copy safe to hand to observers while the
// orchestrator keeps mutating the original.
func (r *AnalysisResult) Snapshot() *AnalysisResult {
	raw, err := json.Marshal(r)
	if err != nil {
		return &AnalysisResult{RepoURL: r.RepoURL, RepoName: r.RepoName, AnalysisMonths: r.AnalysisMonths}
	}
	var snap AnalysisResult
	if err := json.Unmarshal(raw, &snap); err != nil {
		return &AnalysisResult{RepoURL: r.RepoURL, RepoName: r.RepoName, AnalysisMonths: r.AnalysisMonths}
	}
	return &snap
}

// TotalStages is the fixed stage count of the pipeline.
const TotalStages = 5

// Event types broadcast to job subscribers.
const (
	EventProgress = "progress"
	EventPartial  = "partial_result"
	EventComplete = "complete"
	EventError    = "error"
	EventPing     = "ping"
)

// Event is one message on a job's stream.
type Event struct {
	Type        string          `json:"type"`
	Stage       int             `json:"stage"`
	TotalStages int             `json:"total_stages"`
	Message     string          `json:"message"`
	Progress    float64         `json:"progress"`
	Data        *AnalysisResult `json:"data,omitempty"`
}
