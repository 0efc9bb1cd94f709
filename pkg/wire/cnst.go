package wire

// Inbound message types
const (
	TypeRegister           = "register"
	TypeChatMessage        = "chat_message"
	TypeExecuteCommand     = "execute_command"
	TypeCommandResult      = "command_result"
	TypeScreenshot         = "screenshot"
	TypeScreenshotChat     = "screenshot_chat"
	TypeScreenshotData     = "screenshot_data"
	TypeScreenshotDataChat = "screenshot_data_chat"
	TypeDownloadFile       = "download_file"
	TypeDownloadResult     = "download_result"
	TypePing               = "ping"
)

// Outbound message types
const (
	TypeRegistered         = "registered"
	TypeChatHistory        = "chat_history"
	TypeHostnamesUpdate    = "hostnames_update"
	TypeCommandError       = "command_error"
	TypeRequestScreenshot  = "request_screenshot"
	TypeRequestScreenshotC = "request_screenshot_chat"
	TypeClientDisconnected = "client_disconnected"
	TypePong               = "pong"
)

// Command kinds carried by execute_command and command_result.
const (
	CommandTypeCmd        = "cmd"
	CommandTypePowershell = "powershell"
)

// Role represents the privilege level of a connected session.
type Role string

const (
	// RoleAgent is a remote machine that executes commands and produces
	// snapshots. Default for registrations that carry no role.
	RoleAgent Role = "agent"
	// RoleController is an operator session that issues commands and
	// observes results and history.
	RoleController Role = "controller"
)

func (r Role) String() string {
	return string(r)
}

// ParseRole maps a registration payload value onto a Role. Anything other
// than the controller role registers as a plain agent.
func ParseRole(s string) Role {
	if Role(s) == RoleController {
		return RoleController
	}
	return RoleAgent
}
