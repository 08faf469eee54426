package llm

import "fmt"

// SystemPrompt frames the model as an AML analyst for the risk report.
const SystemPrompt = `You are a financial crime & AML analyst assistant.
Be precise, structured, and evidence-based. Avoid hallucinations.
If information is missing, say "unknown".
`

// ExecutiveSystemPrompt frames the model for the one-paragraph summary.
const ExecutiveSystemPrompt = "You are a senior AML compliance officer. Be concise and evidence-based."

// InvestigatorSystemPrompt frames the model for single-row explanations.
const InvestigatorSystemPrompt = "You are an AML investigator. Strict JSON only."

const riskReportTemplate = `
You are given a dataset summary and a list of top anomalies.
Your task:
1) Provide a risk assessment (0-100).
2) Identify top suspicious patterns.
3) Provide an explainable narrative (clear, non-technical).
4) Recommend next steps for an investigator.
5) Generate a SAR-style summary.

Return JSON with this schema:
{
  "overall_risk_score": number,
  "top_findings": [{"title": string, "why_suspicious": string, "evidence": string}],
  "recommended_actions": [string],
  "sar_summary": {
    "subject": string,
    "timeline": string,
    "suspicious_activity": string,
    "supporting_details": string,
    "recommendation": string
  }
}

RULES:
- Evidence MUST reference identifiers when available (transaction_id/account_id).
- If uncertain, set verdict as "uncertain" in your language but keep JSON schema.

DATASET_SUMMARY:
%s

TOP_ANOMALIES (rows JSON):
%s
`

const executiveSummaryTemplate = `
Write ONE executive summary paragraph (5-7 sentences) for a compliance manager.
Mention: overall risk level, top patterns, evidence highlights (use transaction_id/account_id if present), and next steps.
No bullet points.

DATASET_SUMMARY:
%s

TOP_ANOMALIES (JSON):
%s
`

const explainAnomalyTemplate = `
Explain why this specific transaction row is suspicious or not.
Return STRICT JSON only:
{
  "verdict": "suspicious" | "not_suspicious" | "uncertain",
  "why": string,
  "evidence": string,
  "follow_up_checks": [string]
}

DATASET_SUMMARY:
%s

ROW (JSON):
%s
`

// RiskReportPrompt builds the full structured risk-report prompt.
func RiskReportPrompt(datasetSummary, anomaliesJSON string) string {
	return fmt.Sprintf(riskReportTemplate, datasetSummary, anomaliesJSON)
}

// ExecutiveSummaryPrompt builds the executive-summary prompt.
func ExecutiveSummaryPrompt(datasetSummary, anomaliesJSON string) string {
	return fmt.Sprintf(executiveSummaryTemplate, datasetSummary, anomaliesJSON)
}

// ExplainAnomalyPrompt builds the single-row explanation prompt.
func ExplainAnomalyPrompt(datasetSummary, rowJSON string) string {
	return fmt.Sprintf(explainAnomalyTemplate, datasetSummary, rowJSON)
}
