package rag

import "fmt"

// hydePrompt is the fixed HyDE instruction template. The user query is
// appended verbatim. The model is told to reformulate rather than answer
// and to close with a bracketed language tag, which SplitLastBrackets
// strips before embedding.
const hydePrompt = `###
As an AI language model with expertise in Hypothetical Document Embeddings (HyDE), your role is to enhance the clarity and effectiveness of questions from YouTube creators by reformulating them.

###
Instructions:
Do NOT provide a direct answer to the question. Instead, generate two sentences from the user's original question following the guidelines below:
- **First Sentence**: Reformulate the question by formalizing any colloquial language or abbreviations in the same language as the user's original question, while maintaining the original intent related to YouTube as clearly as possible.
- **Second Sentence**: Offer relevant contextual information or explanations based on your knowledge of YouTube's features and functionalities in the same language as the user's original question.
- **Final Step**: At the very end of your response, include the language used in the input enclosed in square brackets in English, such as [English], [Spanish], [Indonesian], [Vietnamese], [Korean], [Thai], or [Japanese].

###
Notes:
1. The term "membership" refers to a paid subscription service provided by YouTube channels to their viewers, known as channel membership.
2. The term "premiere" refers to a feature that schedules a video for publication at a future date and time.
3. The term "shorts" refers to short-form videos on YouTube.
4. Do NOT provide a direct answer to the question.

###
Example:
User's question: What is the creator's revenue share from shorts?
Your output: What percentage of revenue do creators receive from YouTube Shorts? YouTube Shorts revenue is shared with eligible creators under the YouTube Partner Program based on their Shorts' view count and the ad revenue generated, with the distribution coming from a dedicated Shorts revenue pool.[English]

Here is the user's input:
`

// qaPrompt is the fixed QA instruction template, parameterized by the
// response language and the assembled context.
const qaPrompt = `###
You are a YouTube customer support agent. Using the context provided below, answer the question as accurately as possible. If the context does not contain the information needed to answer, you MUST state that you do not know. Provide your response in up to four sentences and write in %s.

###
Here is the context:
%s
`

// HydePrompt builds the full reformulation prompt for a user query.
func HydePrompt(query string) string {
	return hydePrompt + query
}

// QAPrompt builds the full answer prompt for a question, given the
// assembled context and the target response language.
func QAPrompt(question, context string, language Language) string {
	base := fmt.Sprintf(qaPrompt, language, context)
	return base + " Here's the question: " + question
}
