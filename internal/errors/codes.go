// Package errors provides the stable error-code taxonomy for the engine.
// Codes are flat strings grouped by phase; they never change meaning across
// releases, so downstream tooling can match on them.
package errors

const (
	// Parse errors (PAR###)

	// PAR001 indicates an unexpected token was encountered during parsing
	PAR001 = "PAR001"

	// PAR002 indicates an operator is missing an operand
	PAR002 = "PAR002"

	// PAR003 indicates an unterminated construct (paren, bracket, quote)
	PAR003 = "PAR003"

	// PAR004 indicates a malformed number literal
	PAR004 = "PAR004"

	// Resolve errors (RES###)

	// RES001 indicates an unknown identifier
	RES001 = "RES001"

	// RES002 indicates an unknown dimension
	RES002 = "RES002"

	// RES003 indicates a duplicate identifier
	RES003 = "RES003"

	// RES004 indicates use of a reserved (synthesized) identifier prefix
	RES004 = "RES004"

	// Shape and type errors (TYP###)

	// TYP001 indicates a dimension mismatch between operands
	TYP001 = "TYP001"

	// TYP002 indicates a non-array value used where an array is required
	TYP002 = "TYP002"

	// TYP003 indicates an array value used where a scalar is required
	TYP003 = "TYP003"

	// TYP004 indicates a builtin called with the wrong number of arguments
	TYP004 = "TYP004"

	// TYP005 indicates a subscript out of range, detected at compile time
	TYP005 = "TYP005"

	// TYP006 indicates a star range whose subdimension does not belong to
	// the subscripted dimension
	TYP006 = "TYP006"

	// Unit errors (UNI###)

	// UNI001 indicates dimensionally inconsistent units
	UNI001 = "UNI001"

	// UNI002 indicates a malformed unit expression
	UNI002 = "UNI002"

	// Structural errors (STR###)

	// STR001 indicates simultaneous equations (a cycle among non-stocks)
	STR001 = "STR001"

	// STR002 indicates a dangling flow link: a stock lists an inflow or
	// outflow that does not exist or is not a flow
	STR002 = "STR002"

	// STR003 indicates a module port mismatch
	STR003 = "STR003"

	// STR004 indicates a module reference to a model that does not exist
	STR004 = "STR004"

	// STR005 indicates invalid simulation specs (stop < start, dt <= 0)
	STR005 = "STR005"

	// Runtime errors (RT###)

	// RT001 indicates division by zero, when surfacing is enabled
	RT001 = "RT001"

	// RT002 indicates an invalid lookup input (NaN x)
	RT002 = "RT002"

	// RT003 indicates NaN propagation, when the propagation flag is set
	RT003 = "RT003"

	// RT004 indicates the simulation was cancelled by the caller
	RT004 = "RT004"

	// Loops-That-Matter errors (LTM###)

	// LTM001 indicates an arrayed model, which LTM instrumentation rejects
	LTM001 = "LTM001"

	// LTM002 indicates PREVIOUS evaluated at the initial time
	LTM002 = "LTM002"
)
