// Package core provides the sandboxed file and static scan tools.
//
// Every path argument is resolved by the dispatcher before a handler runs,
// so handlers only ever see canonical paths inside the project root.
//
// Tools:
//   - read_file_content: Read one file (size-capped, lenient decoding)
//   - write_to_file: Write a file inside the project
//   - get_directory_tree: Index the project or a subdirectory
//   - search_pattern_in_file: Regex search within one file
//   - search_codebase: Recursive regex search, capped at a match count
//   - list_functions: Tree-sitter listing of function and method definitions
//   - find_taint_sources_and_sinks: Source and sink keyword scan
package core
