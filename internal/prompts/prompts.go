package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

//go:embed prompts.yaml
var promptsFS embed.FS

const defaultHistoryTurns = 12

type yamlPack struct {
	Version            int    `yaml:"version"`
	TutorSystem        string `yaml:"tutor_system"`
	CurriculumSystem   string `yaml:"curriculum_system"`
	CurriculumGenerate string `yaml:"curriculum_generate"`
	CurriculumRevise   string `yaml:"curriculum_revise"`
	ChatTurn           string `yaml:"chat_turn"`
	ChatHistoryTurns   int    `yaml:"chat_history_turns"`
}

// Pack holds the parsed prompt templates. It is immutable after Load.
type Pack struct {
	tutorSystem      string
	curriculumSystem string
	generate         *template.Template
	revise           *template.Template
	chatTurn         *template.Template
	historyTurns     int
}

type GenerateData struct {
	Subject  string
	AgeRange string
}

type ReviseData struct {
	Subject       string
	AgeRange      string
	Current       string
	ChangeRequest string
}

type ChatTurnData struct {
	Subject      string
	AgeRange     string
	Lesson       *domain.Lesson
	LessonNumber int
	LessonCount  int
}

// Load reads the pack from path, or the embedded default when path is empty.
// A broken override falls back to the embedded pack with a warning.
func Load(log *logger.Logger, path string) (*Pack, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			pack, perr := Parse(data)
			if perr == nil {
				return pack, nil
			}
			err = perr
		}
		if log != nil {
			log.Warn("prompt pack override unusable; using embedded pack", "path", path, "error", err)
		}
	}
	data, err := promptsFS.ReadFile("prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Pack, error) {
	var raw yamlPack
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}
	if err := validate(&raw); err != nil {
		return nil, err
	}

	p := &Pack{
		tutorSystem:      strings.TrimSpace(raw.TutorSystem),
		curriculumSystem: strings.TrimSpace(raw.CurriculumSystem),
		historyTurns:     raw.ChatHistoryTurns,
	}
	if p.historyTurns <= 0 {
		p.historyTurns = defaultHistoryTurns
	}
	var err error
	if p.generate, err = template.New("curriculum_generate").Option("missingkey=error").Parse(raw.CurriculumGenerate); err != nil {
		return nil, fmt.Errorf("curriculum_generate: %w", err)
	}
	if p.revise, err = template.New("curriculum_revise").Option("missingkey=error").Parse(raw.CurriculumRevise); err != nil {
		return nil, fmt.Errorf("curriculum_revise: %w", err)
	}
	if p.chatTurn, err = template.New("chat_turn").Option("missingkey=error").Parse(raw.ChatTurn); err != nil {
		return nil, fmt.Errorf("chat_turn: %w", err)
	}
	return p, nil
}

func validate(raw *yamlPack) error {
	var missing []string
	for name, v := range map[string]string{
		"tutor_system":        raw.TutorSystem,
		"curriculum_system":   raw.CurriculumSystem,
		"curriculum_generate": raw.CurriculumGenerate,
		"curriculum_revise":   raw.CurriculumRevise,
		"chat_turn":           raw.ChatTurn,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.New("prompt pack missing: " + strings.Join(missing, ", "))
	}
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (p *Pack) TutorSystem() string { return p.tutorSystem }

func (p *Pack) CurriculumSystem() string { return p.curriculumSystem }

// HistoryTurns caps how many transcript messages a chat turn replays.
func (p *Pack) HistoryTurns() int { return p.historyTurns }

func (p *Pack) Generate(d GenerateData) (string, error) { return render(p.generate, d) }

func (p *Pack) Revise(d ReviseData) (string, error) { return render(p.revise, d) }

func (p *Pack) ChatTurn(d ChatTurnData) (string, error) { return render(p.chatTurn, d) }
