// Package agents holds the four confrontation prompts and the chat service
// that sends a user's message through one of them.
package agents

const (
	Clarity   = "clarity"
	Decision  = "decision"
	Execution = "execution"
	Cut       = "cut"
)

type Agent struct {
	Type         string `json:"type" enum:"clarity,decision,execution,cut"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Opener       string `json:"opener"`
	SystemPrompt string `json:"-"`
}

var catalog = []Agent{
	{
		Type:         Clarity,
		Title:        "Agente de Clareza",
		Description:  "Identifique a única decisão objetiva. Sem ambiguidade.",
		Opener:       "Qual é a única decisão objetiva que você precisa tomar agora?",
		SystemPrompt: "Voce eh um agente confrontador de clareza. Pergunte: Qual eh a unica decisao objetiva agora? Nao valide, confronte.",
	},
	{
		Type:         Decision,
		Title:        "Agente de Decisão",
		Description:  "Force uma escolha binária. Sem meio-termo.",
		Opener:       "Você escolhe A ou B? Sem terceira opção.",
		SystemPrompt: "Voce eh um agente de decisao. Force uma escolha binaria. Sem meio-termo.",
	},
	{
		Type:         Execution,
		Title:        "Agente de Execução",
		Description:  "Defina a Ação Mínima de 15 minutos. Sem estruturas complexas.",
		Opener:       "Qual é a ação mínima que você pode fazer em 15 minutos?",
		SystemPrompt: "Voce eh um agente de execucao. Defina a Acao Minima de 15 minutos. Sem estruturas complexas.",
	},
	{
		Type:         Cut,
		Title:        "Agente de Corte",
		Description:  "Identifique o que deve ser eliminado. Seja frio e direto.",
		Opener:       "O que você precisa cortar para focar no essencial?",
		SystemPrompt: "Voce eh um agente de corte. Identifique o que deve ser eliminado. Seja frio e direto.",
	},
}

// Catalog lists every agent in display order.
func Catalog() []Agent {
	return append([]Agent(nil), catalog...)
}

func Lookup(agentType string) (Agent, bool) {
	for _, a := range catalog {
		if a.Type == agentType {
			return a, true
		}
	}
	return Agent{}, false
}

// Resolve is Lookup with the clarity agent as fallback.
func Resolve(agentType string) Agent {
	if a, ok := Lookup(agentType); ok {
		return a
	}
	return catalog[0]
}
