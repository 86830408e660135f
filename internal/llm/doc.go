// Package llm is a minimal client for OpenAI compatible chat-completion endpoints with
// function calling. Local Ollama, LM Studio and hosted OpenAI style APIs all accept it.
package llm
