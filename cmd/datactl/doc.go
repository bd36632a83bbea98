// Package main (cmd/datactl) edits the records the daemon serves.
//
// It opens the same storage as the daemon (--storage, --kms-seed and friends,
// or a --config file) and works on it directly:
//
//	datactl --storage=file:///var/lib/redact bootstrap-key --path=.keys.profile.
//	datactl put --path=.profile.firstName. --value=Alice --key=.keys.profile.
//	datactl link --path=.profile.name. --target=.profile.firstName.
//	datactl get --path=.profile.name.
//	datactl put --path=.profile.avatar. --type=media --file=avatar.jpg
//	datactl split-seed --seed=<hex> --parts=3 --threshold=2
package main
