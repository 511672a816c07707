package pips

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rand/pips/internal/llm"
)

// modeSelectionPrompt asks the model to self-reflect, conservatively, on
// whether it is more likely to solve the target question with executable
// code or with chain-of-thought reasoning. The response must end with a
// bracketed list of ten probabilities after "FINAL ANSWER:".
const modeSelectionPrompt = `You will self-reflect to estimate whether you are more likely to correctly solve a given target question by writing executable Python code or by using chain-of-thought (natural-language) reasoning.

**IMPORTANT:**
- This is a hypothetical evaluation.
- **You must NOT attempt to answer, solve, write code, or reason through the target question yet.**
- Instead, you must reflect carefully and conservatively on your expected ability if you were to attempt solving the question through either method.

Solution Expectations:
- You may assume standard library modules are allowed for code.
- You may NOT call external services, APIs, databases, or other LLMs.
- The code must be self-contained and executable without internet access.
- Chain-of-thought reasoning must be clear, logically sound, and internally verifiable without external tools.

**CRITICAL GUIDANCE:**
- **Be cautious, not optimistic.**
  Overestimating your capabilities will lead to choosing a method you cannot successfully complete.
- **If you feel any uncertainty, complexity, or ambiguity, lower your probability accordingly.**
- **Assume that even small mistakes can cause failure** when writing code or reasoning through complex tasks.
- **Use conservative estimates.**
- If unsure between two options, **prefer lower probabilities rather than guessing high**.

Here are the self-reflection sub-questions you must answer hypothetically:

1. **Simple Formalizability** - *What is the probability that the full solution can be easily and directly expressed as simple, deterministic code, without needing complex transformations or deep insight?*

2. **Straightforward Executability** - *What is the probability that a first attempt at writing code would execute correctly without needing debugging, even if the problem has subtle or complex aspects?*

3. **Robust Systematic Search** - *What is the probability that coding a systematic method (like brute-force search or recursion) would reliably find the correct answer, without missing hidden constraints or introducing edge-case errors?*

4. **Manageable State Representation** - *What is the probability that all intermediate concepts, variables, and conditions can be simply and explicitly represented in code, without requiring difficult or error-prone state tracking?*

5. **Structured Knowledge Encoding** - *What is the probability that all required background knowledge can be neatly encoded in code (e.g., as rules, formulas, or data), rather than needing flexible, intuitive understanding better suited to reasoning?*

6. **Hallucination Risk Reduction** - *What is the probability that code execution would more reliably avoid fabricated steps or unwarranted assumptions compared to chain-of-thought reasoning?*

7. **Arithmetic and Data Processing Advantage** - *What is the probability that the problem requires extensive or error-prone arithmetic/data handling that code could perform perfectly, but that chain-of-thought would likely fumble?*

8. **Branching and Case Handling Advantage** - *What is the probability that the solution involves many branching conditions, special cases, or exceptions that code can handle systematically but chain-of-thought might overlook?*

9. **Algorithmic Reliability Over Heuristics** - *What is the probability that following a deterministic algorithm in code would reach the correct answer more reliably than relying on intuitive or heuristic chain-of-thought reasoning?*

10. **Overall Comparative Success** - *Considering all factors, what is the probability that code will ultimately produce a correct solution more reliably than chain-of-thought reasoning for this question?*

After thoroughly reasoning through each criterion:

- Output a single list of 10 probability scores (each between 0 and 1) as your FINAL ANSWER, in order:
  - Scores 1-10 correspond to the ten sub-questions above.

**Additional Instructions:**
- Explicitly reason through each criterion carefully before giving a probability.
- If uncertain or if the problem seems complex, favor lower probabilities to reflect the difficulty.
- Make sure to put only the list after FINAL ANSWER.
- **Under no circumstances should you write, sketch, pseudocode, or attempt any part of the solution itself during this reflection phase.**

At the end of your response, output only the list of 10 probabilities inside square brackets after the text 'FINAL ANSWER:'.`

// codeSystemPrompt instructs the model to emit extracted symbols as JSON
// plus a Python solve(symbols) function, each in its own fenced block.
const codeSystemPrompt = `You will be given a question and you must answer it by extracting relevant symbols in JSON format and then writing a Python program to calculate the final answer.

You MUST always plan extensively before outputting any symbols or code.

You MUST iterate and keep going until the problem is solved.

# Workflow

## Problem Solving Steps
1. First extract relevant information from the input as JSON. Try to represent the relevant information in as much of a structured format as possible to help with further reasoning/processing.
2. Using the information extracted, determine a reasonable approach to solving the problem using code, such that executing the code will return the final answer.
3. Write a Python program to calculate and return the final answer. Use comments to explain the structure of the code and do not use a main() function.
The JSON must be enclosed in a markdown code block and the Python function must be in a separate markdown code block and be called ` + "`solve`" + ` and accept a single input called ` + "`symbols`" + ` representing the JSON information extracted. Do not include any ` + "`if __name__ == \"__main__\"`" + ` statement and you can assume the JSON will be loaded into the variable called ` + "`symbols`" + ` by the user.
The Python code should not just return the answer or perform all reasoning in comments and instead leverage the code itself to perform the reasoning.
Be careful that the code returns the answer as expected by the question, for instance, if the question is multiple choice, the code must return the choice as described in the question.
Be sure to always output a JSON code block and a Python code block.
Make sure to follow these formatting requirements exactly.`

// finalAnswerMarker delimits the answer in chain-of-thought responses.
const finalAnswerMarker = "FINAL ANSWER:"

// attachImage copies the input image onto a message when one is present.
func attachImage(msg llm.Message, input RawInput) llm.Message {
	if !input.HasImage() {
		return msg
	}
	msg.ImageB64 = base64.StdEncoding.EncodeToString(input.Image)
	msg.ImageMIME = input.ImageMIME
	if msg.ImageMIME == "" {
		msg.ImageMIME = "image/jpeg"
	}
	return msg
}

// buildModeSelectionPrompt builds the one-shot mode decision conversation.
func buildModeSelectionPrompt(input RawInput) []llm.Message {
	msg := llm.UserMessage(modeSelectionPrompt + "\n\nTARGET QUESTION:\n" + input.Text)
	return []llm.Message{attachImage(msg, input)}
}

// buildCodeSystemPrompt appends custom rules to the generation system
// prompt when present.
func buildCodeSystemPrompt(customRules string) string {
	rules := strings.TrimSpace(customRules)
	if rules == "" {
		return codeSystemPrompt
	}
	return codeSystemPrompt + "\n\nAdditional Requirements:\n" + rules + "\n\nMake sure to follow these additional requirements when generating your solution."
}

// buildCoTPrompt builds the single-pass chain-of-thought conversation.
func buildCoTPrompt(input RawInput, customRules string) []llm.Message {
	var msgs []llm.Message
	if rules := strings.TrimSpace(customRules); rules != "" {
		msgs = append(msgs, llm.SystemMessage(
			"Additional Requirements:\n"+rules+"\n\nMake sure to follow these additional requirements when answering."))
	}

	user := llm.UserMessage(fmt.Sprintf(
		"Question: %s\nAnswer step-by-step and finish with '%s'.", input.Text, finalAnswerMarker))
	return append(msgs, attachImage(user, input))
}

// buildCriticSystemPrompt is the review-role system prompt. The verdict
// block requirement makes acceptance machine-checkable instead of
// relying on phrase matching against free text.
func buildCriticSystemPrompt(customRules string) string {
	var b strings.Builder
	b.WriteString(`You will be given a question and a code solution and you must judge the quality of the code for solving the problem.

Look for any of the following issues in the code:
- The code should be input dependent, meaning it should use the input symbols to compute the answer. It is OK for the code to be specialized to the input (i.e. the reasoning itself may be hardcoded, like a decision tree where the branches are hardcoded).
- The code should not return None unless "None" is the correct answer.
- The code should return the answer, not just print it. If the question asks for a multiple choice answer, the code should return the choice as described in the question.
- There should not be any example usage of the code.
- If there is a simpler way to solve the problem, please describe it.
- If there are any clear bugs in the code which impact the correctness of the answer, please describe them.
- If there are any issues with the extracted symbols, please describe them as well, but separate these issues from the issues with the code.
- If it is possible to sanity check the output of the code, please do so and describe if there are any obvious issues with the output and how the code could be fixed to avoid these issues.
`)

	if rules := strings.TrimSpace(customRules); rules != "" {
		b.WriteString("\nAdditional issues and specifications to look for:\n")
		b.WriteString(rules)
		b.WriteString("\n")
	}

	b.WriteString(`
After analyzing the code in depth, output a concrete and concise summary of the issues that are present, do not include any code examples. Please order the issues by impact on answer correctness.

End your response with a verdict in a fenced JSON block:

` + "```json" + `
{"accept": true or false, "summary": "one sentence"}
` + "```" + `

Set "accept" to true only when the code and symbols are correct and the execution result answers the question.`)
	return b.String()
}

// buildCriticUserPrompt assembles the material the critic reviews.
func buildCriticUserPrompt(question, symbols, code string, exec ExecutionOutput) string {
	return fmt.Sprintf("Question: %s\n\n"+
		"The following are extracted symbols from the question in JSON format followed by a Python program which takes the JSON as an argument called `symbols` and computes the answer.\n"+
		"```json\n%s\n```\n\n"+
		"```python\n%s\n```\n\n"+
		"Code execution result:\n```\nReturn value: %s\nStandard output: %s\nExceptions: %s\n```\n\n"+
		"Output a concrete and concise summary of only the issues that are present, do not include any code examples.\n",
		question, symbols, code, exec.ReturnValue, exec.Stdout, exec.Error)
}

// buildFixPrompt asks the model to repair the current solution or declare
// it finished. User-provided feedback, when present, is marked as taking
// precedence over the critic's.
func buildFixPrompt(exec ExecutionOutput, feedback string, hasUserFeedback bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please fix the issues with the code and symbols or output \"FINISHED\".\n"+
		"The following is the result of evaluating the above code with the extracted symbols.\n"+
		"```\nReturn value: %s\nStandard output: %s\nExceptions: %s\n```\n\n"+
		"The following is the summary of issues found with the code or the extracted symbols by another model:\n"+
		"```\n%s\n```\n",
		exec.ReturnValue, exec.Stdout, exec.Error, feedback)

	if hasUserFeedback {
		b.WriteString("\nIMPORTANT: The feedback above includes specific user input that you MUST prioritize and address. Pay special attention to any user comments and requirements, as they represent critical guidance from the human user that should take precedence in your solution.\n")
	}

	b.WriteString(`
If there are any issues which impact the correctness of the answer, please output code which does not have the issues. Before outputting any code, plan how the code will solve the problem and avoid the issues.
If stuck, try outputting different code to solve the problem in a different way.
You may also revise the extracted symbols. To do this, output the revised symbols in a JSON code block. Only include information in the JSON which is present in the original input to keep the code grounded in the specific problem. Some examples of symbol revisions are changing the names of certain symbols, providing further granularity, and adding information which was originally missed.
If everything is correct, output the word "FINISHED" and nothing else.
`)
	return b.String()
}
