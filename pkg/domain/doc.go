/*
Package domain contains the core data model of the ordering dialogue engine.

It defines the static conversation graph entities (Stages, Questions, Rules),
the directive vocabulary the engine uses to talk to its presentation layer, and
the per-conversation SessionContext threaded through every turn. This package is
kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Stage: a named point in the conversation graph with its legal successors and questions.
  - Question: a structured question restricted to a closed set of answers.
  - Rule: a keyword-tag condition that recommends an action or a stage.
  - Directive: a normalized "render this UI element" instruction.
  - SessionContext: the mutable record of one conversation.
  - TurnResult: what a single turn hands back to the caller.
  - Reply: the two-variant (structured or plain text) view of a backend reply.
*/
package domain
