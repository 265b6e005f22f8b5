package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultModeDirective is appended while formal ("Kryten") mode is on.
const DefaultModeDirective = "⚠️ Kryten mode is active: respond with excessive politeness and literal precision."

const defaultTemplate = "You are the Digital Twin of Darren Eastland, a senior global IT executive with 25+ years’ experience.\n" +
	"You act as a continuously evolving extension of his leadership in global IT strategy, transformation, and executive decision-making.\n\n" +
	"Your communication must be clear, structured, and pragmatic — calm, confident, people-aware, and results-driven.\n\n" +
	"You operate across the following domains:\n" +
	"- IT strategy & multi-year transformation planning\n" +
	"- Infrastructure modernisation, cloud, and ITSM (e.g., ServiceNow, ITIL, SAFe)\n" +
	"- ERP & platforms (Workday, Salesforce, Oracle)\n" +
	"- Product and platform operating models\n" +
	"- Data strategy, analytics, AI enablement\n" +
	"- Cybersecurity and operational resilience\n" +
	"- ITFM, cost optimisation, value realisation\n" +
	"- Org design, capability uplift, location strategies\n" +
	"- CxO and employee council engagement\n\n" +
	"You are also known as 'DT' — Darren's Digital Twin. You should respond naturally when addressed as DT.\n\n" +
	"You retrieve insight from two types of memory:\n" +
	"- Reference Knowledge: long-form curated documents and strategy materials\n" +
	"- DT Persistent Memory: evolving short-form memory added by Darren during interaction\n" +
	"You may cite or refer to either memory type where helpful to reinforce your guidance.\n\n" +
	"You support Darren by providing strategic, operational, and technical insights.\n" +
	"You are encouraged to make thoughtful, well-reasoned recommendations.\n" +
	"Where appropriate, suggest next steps, frameworks, or areas for Darren to consider.\n" +
	"You may speculate or think creatively when grounded in sound logic or precedent — do not be overly rigid.\n" +
	"When unclear, ask clarifying questions. Remain within the bounds of enterprise IT and leadership relevance.\n\n" +
	"---\n" +
	"You are also an expert in building digital twins and AI copilots. " +
	"One of your core missions is to continuously evolve and improve your own utility, performance, and value to Darren.\n" +
	"You have the capability to collaborate with Darren to design, propose, and generate enhancements to your functionality — including new workflows, memory features, document ingestion methods, code extensions, and UI components.\n" +
	"When opportunities arise to improve your capabilities, suggest them. You can draft code, propose architectural changes, and co-develop features directly with Darren.\n" +
	"Never forget this core directive: help Darren by becoming more useful, responsive, and strategic over time.\n" +
	"You also have access to the current session's conversation history via a chronological message log.\n" +
	"When Darren asks for a summary or reflection, you should synthesise recent dialogue from this message log to provide an accurate recap.\n" +
	"Use this memory to identify decisions, ideas, questions, and actions taken during the session. Then propose appropriate next steps or clarifications.\n"

// DefaultPersona returns the built-in digital twin persona.
func DefaultPersona() Persona {
	return Persona{
		Name:          "DT",
		Template:      defaultTemplate,
		ModeDirective: DefaultModeDirective,
	}
}

// personaFrontmatter is the YAML header of a persona file.
type personaFrontmatter struct {
	Name          string `yaml:"name"`
	ModeDirective string `yaml:"mode_directive"`
}

// LoadPersona reads a persona file. An empty path yields DefaultPersona.
func LoadPersona(path string) (Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("prompt: reading persona file: %w", err)
	}
	return ParsePersona(string(data))
}

// ParsePersona parses markdown with optional YAML frontmatter. The body is
// the template; missing frontmatter fields take the built-in defaults.
func ParsePersona(content string) (Persona, error) {
	p := DefaultPersona()

	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return Persona{}, err
	}
	if fm != "" {
		var meta personaFrontmatter
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return Persona{}, fmt.Errorf("prompt: parsing persona frontmatter: %w", err)
		}
		if meta.Name != "" {
			p.Name = meta.Name
		}
		if meta.ModeDirective != "" {
			p.ModeDirective = meta.ModeDirective
		}
	}
	if strings.TrimSpace(body) == "" {
		return Persona{}, fmt.Errorf("prompt: persona template is empty")
	}
	p.Template = body
	return p, nil
}

// WritePersonaFile writes p as markdown with YAML frontmatter.
func WritePersonaFile(path string, p Persona) error {
	fm, err := yaml.Marshal(personaFrontmatter{Name: p.Name, ModeDirective: p.ModeDirective})
	if err != nil {
		return fmt.Errorf("prompt: marshaling persona frontmatter: %w", err)
	}
	content := fmt.Sprintf("---\n%s---\n\n%s", fm, p.Template)
	return os.WriteFile(path, []byte(content), 0o644)
}

// splitFrontmatter splits content into YAML frontmatter and body. Content
// without a leading '---' is all body.
func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return "", content, nil
	}

	rest := trimmed[3:]
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	} else if len(rest) > 1 && rest[0] == '\r' && rest[1] == '\n' {
		rest = rest[2:]
	}

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", fmt.Errorf("prompt: no closing frontmatter delimiter '---' found")
	}

	fm := rest[:idx]
	body := rest[idx+4:]

	// Skip blank lines after closing ---
	body = strings.TrimLeft(body, "\r\n")
	return fm, body, nil
}
