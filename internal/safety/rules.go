package safety

import (
	"fmt"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/config"

	"github.com/google/cel-go/cel"
)

// Rule is a compiled operator rule. When Expr evaluates to true the send is
// hard-blocked with Block.
type Rule struct {
	Name  string
	Block autosend.HardBlock
	Expr  string
	prg   cel.Program
}

// Rules evaluates operator-defined CEL rules against a send context.
type Rules struct {
	rules []Rule
}

// Match names the rule that fired.
type Match struct {
	Rule  string
	Block autosend.HardBlock
}

func newRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("inbound", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("draft", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("sentiment", cel.StringType),
		cel.Variable("lead_name", cel.StringType),
		cel.Variable("lead_email", cel.StringType),
		cel.Variable("lead_domain", cel.StringType),
		cel.Variable("lead_company", cel.StringType),
		cel.Variable("workspace_id", cel.StringType),
		cel.Variable("campaign_id", cel.StringType),
		cel.Variable("automated", cel.BoolType),
	)
}

// NewRules compiles every configured rule. A rule that does not compile to a
// boolean expression is a configuration error.
func NewRules(cfgs []config.RuleConfig) (*Rules, error) {
	env, err := newRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	rules := make([]Rule, 0, len(cfgs))
	for i, rc := range cfgs {
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}

		block := autosend.HardBlockPolicy
		if rc.Block != "" {
			parsed, ok := autosend.ParseHardBlock(rc.Block)
			if !ok || parsed == autosend.HardBlockNone {
				return nil, fmt.Errorf("rule %s: unknown block %q", name, rc.Block)
			}
			block = parsed
		}

		ast, issues := env.Compile(rc.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile: %w", name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %s", name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %s: program: %w", name, err)
		}

		rules = append(rules, Rule{Name: name, Block: block, Expr: rc.Expr, prg: prg})
	}

	return &Rules{rules: rules}, nil
}

func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Evaluate returns the first rule that fires. Evaluation errors are returned
// so callers can fail closed.
func (r *Rules) Evaluate(sc autosend.SendContext, draft string) (*Match, error) {
	if r == nil {
		return nil, nil
	}

	input := ruleInput(sc, draft)
	for _, rule := range r.rules {
		out, _, err := rule.prg.Eval(input)
		if err != nil {
			return nil, fmt.Errorf("rule %s: eval: %w", rule.Name, err)
		}
		fired, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("rule %s: result not bool", rule.Name)
		}
		if fired {
			return &Match{Rule: rule.Name, Block: rule.Block}, nil
		}
	}
	return nil, nil
}

func ruleInput(sc autosend.SendContext, draft string) map[string]any {
	campaignID := ""
	if sc.Campaign != nil {
		campaignID = sc.Campaign.ID
	}
	return map[string]any{
		"inbound":      sc.Conversation.LatestInbound,
		"subject":      sc.Conversation.Subject,
		"draft":        draft,
		"channel":      string(sc.Channel),
		"sentiment":    sc.Conversation.Sentiment,
		"lead_name":    sc.Lead.Name,
		"lead_email":   strings.ToLower(sc.Lead.Email),
		"lead_domain":  emailDomain(sc.Lead.Email),
		"lead_company": sc.Lead.Company,
		"workspace_id": sc.WorkspaceID,
		"campaign_id":  campaignID,
		"automated":    sc.Conversation.AutomatedFlag,
	}
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
