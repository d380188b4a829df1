package models

// ModuleStatus is the processing state of one analysis module.
type ModuleStatus string

const (
	ModuleStatusPending    ModuleStatus = "pending"
	ModuleStatusProcessing ModuleStatus = "processing"
	ModuleStatusCompleted  ModuleStatus = "completed"
	ModuleStatusError      ModuleStatus = "error"
)

// ModuleKeys is the fixed, ordered list of analysis modules reported by the backend.
var ModuleKeys = []string{
	"avatars",
	"drivers_mentais",
	"anti_objecao",
	"provas_visuais",
	"pre_pitch",
	"predicoes_futuro",
	"posicionamento",
	"concorrencia",
	"palavras_chave",
	"funil_vendas",
	"insights",
	"plano_acao",
	"metricas_kpis",
	"implementacao_timeline",
}

// ProgressSnapshot is a point-in-time progress report for a running session.
type ProgressSnapshot struct {
	Percentage    float64                 `json:"percentage"`
	CurrentStep   string                  `json:"current_step"`
	TotalSteps    int                     `json:"total_steps"`
	EstimatedTime string                  `json:"estimated_time"`
	Completed     bool                    `json:"completed"`
	Error         string                  `json:"error,omitempty"`
	ModulesStatus map[string]ModuleStatus `json:"modules_status,omitempty"`
}

// ClampedPercentage returns the percentage bounded to [0, 100].
func (p *ProgressSnapshot) ClampedPercentage() float64 {
	switch {
	case p.Percentage < 0:
		return 0
	case p.Percentage > 100:
		return 100
	default:
		return p.Percentage
	}
}

// ModuleGrid returns the status of every known module in ModuleKeys order.
// Modules absent from the snapshot are pending.
func (p *ProgressSnapshot) ModuleGrid() []ModuleState {
	grid := make([]ModuleState, len(ModuleKeys))
	for i, key := range ModuleKeys {
		status, ok := p.ModulesStatus[key]
		if !ok || status == "" {
			status = ModuleStatusPending
		}
		grid[i] = ModuleState{Key: key, Status: status}
	}
	return grid
}

// ModuleState pairs a module key with its status.
type ModuleState struct {
	Key    string
	Status ModuleStatus
}
