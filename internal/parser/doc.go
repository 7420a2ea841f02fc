// Package parser reads programs for the verifier.
//
// A program file is YAML. Declarations, contracts and simple statements
// are strings in a small surface syntax that the Lexer and Parser turn
// into ast nodes; structured statements (if, while, constraining) are
// YAML mappings. Positions of parsed nodes point into the YAML file.
package parser
