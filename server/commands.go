package server

// handlerFunc is a command handler body. It returns false to end the
// session (QUIT). Errors of the pathio kind are reported to the client
// as 451; anything else is logged and the session continues.
type handlerFunc func(s *session, rest string) (bool, error)

// command couples a handler with its declared guards. Guards run in
// order — connection state, path state, permissions — before the body.
type command struct {
	fn        handlerFunc
	conds     []connCondition
	pathConds []pathCondition
	perms     []pathPermission
}

var (
	loginOnly       = []connCondition{condLoginRequired}
	passiveRequired = []connCondition{condLoginRequired, condPassiveServerStarted}
	readable        = []pathPermission{permReadable}
	writable        = []pathPermission{permWritable}
)

// commandsMapping routes lowercased command verbs. Unknown verbs get
// "502 '<cmd>' not implemented".
var commandsMapping map[string]command

func init() {
	commandsMapping = map[string]command{
		"abor": {fn: (*session).ftpAbor, conds: loginOnly},
		"appe": {fn: (*session).ftpAppe, conds: passiveRequired, perms: writable},
		"cdup": {fn: (*session).ftpCdup, conds: loginOnly},
		"cwd": {fn: (*session).ftpCwd, conds: loginOnly,
			pathConds: []pathCondition{pathMustExist, pathMustBeDir}, perms: readable},
		"dele": {fn: (*session).ftpDele, conds: loginOnly,
			pathConds: []pathCondition{pathMustExist, pathMustBeFile}, perms: writable},
		"epsv": {fn: (*session).ftpEpsv, conds: loginOnly},
		"list": {fn: (*session).ftpList, conds: passiveRequired,
			pathConds: []pathCondition{pathMustExist}, perms: readable},
		"mkd": {fn: (*session).ftpMkd, conds: loginOnly,
			pathConds: []pathCondition{pathMustNotExist}, perms: writable},
		"mlsd": {fn: (*session).ftpMlsd, conds: passiveRequired,
			pathConds: []pathCondition{pathMustExist}, perms: readable},
		"mlst": {fn: (*session).ftpMlst, conds: loginOnly,
			pathConds: []pathCondition{pathMustExist}, perms: readable},
		"noop": {fn: (*session).ftpNoop, conds: loginOnly},
		"pass": {fn: (*session).ftpPass, conds: []connCondition{condUserRequired}},
		"pasv": {fn: (*session).ftpPasv, conds: loginOnly},
		"pbsz": {fn: (*session).ftpPbsz, conds: loginOnly},
		"prot": {fn: (*session).ftpProt, conds: loginOnly},
		"pwd":  {fn: (*session).ftpPwd, conds: loginOnly},
		"quit": {fn: (*session).ftpQuit},
		"rest": {fn: (*session).ftpRest},
		"retr": {fn: (*session).ftpRetr, conds: passiveRequired,
			pathConds: []pathCondition{pathMustExist, pathMustBeFile}, perms: readable},
		"rmd": {fn: (*session).ftpRmd, conds: loginOnly,
			pathConds: []pathCondition{pathMustExist, pathMustBeDir}, perms: writable},
		"rnfr": {fn: (*session).ftpRnfr, conds: loginOnly,
			pathConds: []pathCondition{pathMustExist}, perms: writable},
		"rnto": {fn: (*session).ftpRnto,
			conds:     []connCondition{condLoginRequired, condRenameFromRequired},
			pathConds: []pathCondition{pathMustNotExist}, perms: writable},
		"size": {fn: (*session).ftpSize, conds: loginOnly,
			pathConds: []pathCondition{pathMustExist, pathMustBeFile}},
		"stor": {fn: (*session).ftpStor, conds: passiveRequired, perms: writable},
		"syst": {fn: (*session).ftpSyst},
		"type": {fn: (*session).ftpType, conds: loginOnly},
		"user": {fn: (*session).ftpUser},
	}
}
