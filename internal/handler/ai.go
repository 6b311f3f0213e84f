package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scholarmark/scholarmark-api/internal/service"
)

type AIHandler struct {
	service *service.AIService
}

func NewAIHandler(service *service.AIService) *AIHandler {
	return &AIHandler{service: service}
}

type aiRequest struct {
	Text    string `json:"text" binding:"required"`
	Context string `json:"context"`
	Style   string `json:"style"`
}

// System prompts per operation. The admission middleware has already
// gated and charged the request by the time these run.
var operationPrompts = map[string]string{
	"suggestions":         "You are an academic writing assistant. Suggest improvements to the passage, preserving the author's argument.",
	"grammar":             "You are an academic editor. Correct grammar and style issues in the passage and return the improved text.",
	"citations":           "You are a research librarian. Suggest relevant citations for the claims made in the passage.",
	"tone":                "You are an academic editor. Analyze the tone of the passage and suggest adjustments for scholarly register.",
	"research_questions":  "You are a research advisor. Propose focused research questions arising from the topic described.",
	"outline":             "You are a research advisor. Produce a structured outline for a paper on the topic described.",
	"literature_analysis": "You are a research analyst. Identify themes, gaps and methodological patterns in the literature excerpt.",
	"methodology":         "You are a research methods advisor. Recommend a suitable methodology for the research described.",
	"abstract":            "You are an academic editor. Draft a concise abstract for the paper content provided.",
	"keywords":            "You are an indexing specialist. Extract the most relevant keywords from the title and abstract provided.",
	"format_reference":    "You are a citation formatter. Reformat the reference into the requested citation style.",
	"check_style":         "You are a style-guide checker. Report deviations from the requested style guide in the passage.",
	"extract_citations":   "You are a citation extractor. List the citations present in the passage in structured form.",
	"suggest_transitions": "You are an academic editor. Suggest transition sentences connecting the provided paragraphs.",
	"check_arguments":     "You are a critical reader. Evaluate the strength of the arguments in the passage and flag weaknesses.",
	"suggest_evidence":    "You are a research advisor. Suggest kinds of evidence that would support the stated claim.",
}

// Operation returns a handler for one AI operation. Routes are registered
// from the same operation names the policy tables use.
func (h *AIHandler) Operation(operation string) gin.HandlerFunc {
	systemPrompt, ok := operationPrompts[operation]
	if !ok {
		panic(fmt.Sprintf("handler: no prompt for operation %q", operation))
	}

	return func(c *gin.Context) {
		var req aiRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userPrompt := req.Text
		if req.Context != "" {
			userPrompt = fmt.Sprintf("Context: %s\n\n%s", req.Context, req.Text)
		}
		if req.Style != "" {
			userPrompt = fmt.Sprintf("%s\n\nRequested style: %s", userPrompt, req.Style)
		}

		ctx := c.Request.Context()
		result, err := h.service.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			requestID := c.GetString("request_id")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":      "AI service unavailable, please try again later",
				"request_id": requestID,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"operation": operation,
			"result":    result,
		})
	}
}

// Operations lists the AI operations this handler can serve.
func (h *AIHandler) Operations() []string {
	ops := make([]string, 0, len(operationPrompts))
	for op := range operationPrompts {
		ops = append(ops, op)
	}
	return ops
}
