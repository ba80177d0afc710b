package crllm

import "fmt"

const systemPrompt = "You are a helpful assistant."

const promptTemplate = `You are a senior Go auditor and security expert.

Below is a runtime report of every function executed.

Report:
------
%s
------

Produce a markdown audit with these sections:

1. **Errors & Exceptions** – list each, with likely root cause and suggested fix.
2. **Security Issues** – e.g. dangerous calls with unvalidated input.
3. **Performance Hotspots** – any call >100 ms or obviously repeated work.
4. **Runtime Concerns** – goroutine leaks, long blocking calls.
5. **Architectural Notes** – dead code, import cycles, tight coupling.

If you find none in any of the sections, just mention "no findings". You can also add a section for each of the following: "errors", "security", "performance", "runtime", "architecture".

Ignore issues caused by the tracing instrumentation itself (the injected call-recording statements), since it produced the report you are auditing.

Be terse but thorough and send your response in raw markdown format.`

// Prompt renders the audit prompt for one report.
func Prompt(report string) string {
	return fmt.Sprintf(promptTemplate, report)
}
