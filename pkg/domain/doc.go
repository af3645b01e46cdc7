/*
Package domain contains the core models of the conversational automation
engine: agents, flows and their nodes, tools and cached tool responses, and
the per-conversation session.

It is kept free of I/O and persistence concerns. Adapters under pkg/adapters
map these types to their stores; the runtime under internal/runtime walks
them.

# Key entities

  - Flow: a rooted graph of Nodes driving automated agent behavior.
  - Node: one step in a flow (message, tool call, branch, ...), modeled as a
    tagged union: common identity fields plus a type-specific payload.
  - Session: the runtime instance of a flow being walked for one conversation.
  - Tool: a configured external HTTP integration callable from a flow.
  - ToolResponse: a cache row keyed by the hash of the canonicalized request.
*/
package domain
