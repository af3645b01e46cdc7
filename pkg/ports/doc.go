/*
Package ports defines the interfaces between the engine core and the outside
world, following Hexagonal Architecture principles.

The engine owns sessions and the tool-response cache; flows, tools,
conversations and attributes are durable data owned by collaborator systems
and reached only through these interfaces. Adapters live under pkg/adapters.
*/
package ports
