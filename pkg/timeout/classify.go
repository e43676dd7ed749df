package timeout

import "strings"

// OperationClass buckets operations by the latency and risk profile of
// evaluating them.
type OperationClass string

const (
	ClassFileRead      OperationClass = "file_read"
	ClassFileWrite     OperationClass = "file_write"
	ClassSystemCommand OperationClass = "system_command"
	ClassNetworkAccess OperationClass = "network_access"
	ClassPrivilegeOp   OperationClass = "privilege_operation"
	ClassDataAccess    OperationClass = "data_access"
	ClassHelpQuery     OperationClass = "help_query"
)

// Classes lists every operation class.
func Classes() []OperationClass {
	return []OperationClass{
		ClassFileRead,
		ClassFileWrite,
		ClassSystemCommand,
		ClassNetworkAccess,
		ClassPrivilegeOp,
		ClassDataAccess,
		ClassHelpQuery,
	}
}

// classKeywords is checked in order; the first class with a matching
// keyword wins. Privilege markers are checked first because "sudo cat"
// is a privilege operation, not a file read.
var classKeywords = []struct {
	class    OperationClass
	keywords []string
}{
	{ClassPrivilegeOp, []string{"sudo", "doas", "su ", "chmod", "chown", "setcap", "runas"}},
	{ClassHelpQuery, []string{"help", "--help", "-h ", "version", "--version", "what is", "how do", "explain"}},
	{ClassNetworkAccess, []string{"curl", "wget", "http://", "https://", "download", "upload", "ssh", "scp", "ping", "fetch"}},
	{ClassFileWrite, []string{"write", "save", "append", "touch", "mkdir", "mv ", "cp ", "edit", "create file", ">"}},
	{ClassDataAccess, []string{"select ", "insert ", "update ", "delete from", "query", "database", "sql"}},
	{ClassFileRead, []string{"read", "cat ", "head ", "tail ", "less ", "stat ", "view", "open file", "ls ", "list"}},
}

// Classify buckets an operation by keyword matching over its text.
// Anything unrecognized classifies as a system command, the most
// conservative bucket.
func Classify(operation string) OperationClass {
	text := strings.ToLower(operation)
	for _, ck := range classKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(text, kw) {
				return ck.class
			}
		}
	}
	return ClassSystemCommand
}
