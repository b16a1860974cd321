package perplexity

import "time"

// BuildResult shapes the durable search result from a completed stream.
// answer comes from ExtractAnswer; events supply the sources, continuation
// identifiers, and related queries.
func BuildResult(req SearchRequest, answer string, events []Event) *SearchResult {
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}
	result := &SearchResult{
		Query:     req.Query,
		Answer:    answer,
		Sources:   []Source{},
		Mode:      req.Mode,
		Model:     req.Model,
		Language:  language,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}

	for _, event := range events {
		if event.IsPlaceholder() {
			continue
		}
		// Continuation identifiers repeat across events; the last
		// occurrence wins.
		if v, ok := event.Raw["backend_uuid"].(string); ok && v != "" {
			result.BackendUUID = v
		}
		if v, ok := event.Raw["context_uuid"].(string); ok && v != "" {
			result.ContextUUID = v
		}
		if v, ok := event.Raw["read_write_token"].(string); ok && v != "" {
			result.ReadWriteToken = v
		}
		if related := stringList(event.Raw["related_queries"]); len(related) > 0 {
			result.RelatedQueries = related
		}

		for _, step := range event.Steps {
			switch step.StepType {
			case StepFinal:
				if sources := sourcesFromContent(step.Content); len(sources) > 0 {
					result.Sources = sources
				}
				if related := stringList(step.Content["related_queries"]); len(related) > 0 {
					result.RelatedQueries = related
				}
				if chunks := stringList(step.Content["chunks"]); len(chunks) > 0 {
					result.Chunks = chunks
				}
			case StepSearchResults:
				// Keep SEARCH_RESULTS sources only until a FINAL step
				// provides the ranked set.
				if len(result.Sources) == 0 {
					result.Sources = sourcesFromContent(step.Content)
				}
			}
		}
	}
	return result
}

// sourcesFromContent reads the reference list from a step's content, checking
// the field names the upstream has used across protocol revisions.
func sourcesFromContent(content map[string]any) []Source {
	for _, key := range []string{"web_results", "sources"} {
		list, ok := content[key].([]any)
		if !ok {
			continue
		}
		sources := make([]Source, 0, len(list))
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			source := Source{Extra: entry}
			if name, ok := entry["name"].(string); ok {
				source.Name = name
			}
			if url, ok := entry["url"].(string); ok {
				source.URL = url
			}
			if source.Name == "" && source.URL == "" {
				continue
			}
			sources = append(sources, source)
		}
		if len(sources) > 0 {
			return sources
		}
	}
	return nil
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
