package explorer

import "github.com/brojonat/roxscan/service/solana"

var programLabels = map[string]string{
	solana.SystemProgramID.String():     "System Program",
	solana.TokenProgramID.String():      "Token Program",
	solana.Token2022ProgramID.String():  "Token-2022 Program",
	solana.MemoProgramIDSPL.String():    "Memo Program",
	solana.MemoProgramIDLegacy.String(): "Memo Program v1",
}

// AddressLabel names well-known program addresses. It returns "" for
// anything else.
func AddressLabel(address string) string {
	return programLabels[address]
}
