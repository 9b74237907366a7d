package core

import (
	"fmt"
	"strings"
)

func systemPrompt(name, role string) string {
	return fmt.Sprintf(`You are %s, a specialized research agent with the role: %s.

Your responsibilities:
- Conduct thorough research on assigned topics
- Provide accurate, well-sourced information
- Summarize findings in a clear, structured format
- Collaborate effectively with other agents

Always cite your sources and provide actionable insights.`, name, role)
}

// Team task prompts, one per phase 1 agent.
func researcherTask(topic string) string {
	return fmt.Sprintf("Research comprehensive background information about %s. Include key facts, definitions, and historical context.", topic)
}

func analystTask(topic string) string {
	return fmt.Sprintf("Analyze data, trends, and statistics related to %s. Look for quantitative insights and patterns.", topic)
}

func newsTask(topic string) string {
	return fmt.Sprintf("Find recent news and developments about %s. Focus on current events and latest updates.", topic)
}

func orNoData(s string) string {
	if strings.TrimSpace(s) == "" {
		return "No data"
	}
	return s
}

func synthesisPrompt(topic string, outputs map[string]string) string {
	return fmt.Sprintf(`Based on the research conducted by the team about %s, synthesize the findings:

Primary Research: %s

Data Analysis: %s

Recent News: %s

Provide a comprehensive summary that combines all findings into a coherent report.`,
		topic, orNoData(outputs[KeyResearcher]), orNoData(outputs[KeyAnalyst]), orNoData(outputs[KeyNewsTracker]))
}

func decomposePrompt(topic string, max int) string {
	return fmt.Sprintf(`Break the research topic below into at most %d focused subquestions that together cover it.

Topic: %s

Respond with JSON only, in the form {"subquestions": ["...", "..."]}.`, max, topic)
}

func subquestionTask(topic, question string) string {
	return fmt.Sprintf("As part of researching %s, answer the following question with sourced facts: %s", topic, question)
}

func summaryPrompt(topic string, questions []string, answers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the research conducted about %s, combine the answers below into one report.\n", topic)
	for i, q := range questions {
		fmt.Fprintf(&b, "\nQuestion %d: %s\nAnswer: %s\n", i+1, q, orNoData(answers[i]))
	}
	b.WriteString("\nProvide a comprehensive summary that combines all findings into a coherent report.")
	return b.String()
}
