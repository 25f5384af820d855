package protocol

// This package implements parsing and serialising of the NetSoul protocol
// lines exchanged between a client and a NetSoul server.
//
// The protocol is
//
// - line oriented, lines are `\n` or `\r\n` delimited
// - ASCII, tokens are separated by a single space
// - not tagged, replies are matched to requests purely by arrival order
//
// - `Greeting` - The first line a server sends. It carries the challenge seed
//                used to compute the credential hash.
// - `Reply`    - A status code plus free text answering the oldest request
//                that expects a reply.
// - `Ping`     - A keep alive from the server. Clients echo it back.
// - `UserCommand` - An envelope for everything else, presence, roster rows
//                and commands sent by other users.
//
// === Server lines
//
//   ```
//     salut <socket> <hash> <ip> <port> <timestamp>
//     ping <timestamp>
//     rep <code> <text...>
//     user_cmd <socket>:user:<low>/<high>:<login>@<ip>:<workstation>:<location>:<group> | <cmd...>
//   ```
//
// === Client lines
//
//   ```
//     auth_ag ext_user none none
//     ext_user_log <login> <hash> <location> <resource>
//     state <name>:<timestamp>
//     user_cmd watch_log_user <loginlist>
//     user_cmd who <loginlist>
//     user_cmd msg_user <loginlist> <cmd> <payload>
//     exit
//   ```
//
// The location, resource and payload fields are percent encoded.
//
// === Authentication
//
//  ```
//    < salut 12 abcd 1.2.3.4 4242 1000
//    > auth_ag ext_user none none
//    < rep 002 -- cmd end
//    > ext_user_log bob <md5(abcd-1.2.3.4/4242<password>)> <location> <resource>
//    < rep 002 -- cmd end
//  ```
//
// Any reply code other than 2 means the step failed.
//
// === Login lists
//
// A login is either a user name or a numeric socket id prefixed with ':'. A
// set of logins is written `{bob,:12,alice}`, a single login may be written
// bare.
//
// === Roster queries
//
// A `who` query is answered by one `user_cmd ... | who <fields...>` line per
// matching connection followed by `user_cmd ... | who rep -- cmd end`. The
// terminator token is configurable, see DefaultWhoTerminator.
